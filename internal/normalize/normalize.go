// Package normalize turns raw warehouse extracts into a common shape ready
// for the merge: lower-cased headers, canonical user ids, ISO activity
// weeks, and per-source column prefixes.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/user-dashboard/internal/fetcher"
	"github.com/sells-group/user-dashboard/internal/model"
)

// Record is one normalized extract record.
type Record struct {
	UserID string
	Week   string            // model.DateLayout or "" when absent or unparseable
	Values map[string]string // keyed by prefixed column name
}

// Extract is a normalized extract. Records keep their source order with
// duplicate (user_id, week) keys collapsed.
type Extract struct {
	Source  model.Source
	Columns []string // prefixed non-key columns in source order
	Records []Record
}

var weekLayouts = []string{
	model.DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006/01/02",
	"01/02/2006",
}

// ParseDate parses a warehouse date or timestamp and truncates it to the
// calendar day in UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range weekLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// NormalizeWeek returns the week in model.DateLayout form, or "" when it
// cannot be parsed.
func NormalizeWeek(s string) string {
	t, ok := ParseDate(s)
	if !ok {
		return ""
	}
	return t.Format(model.DateLayout)
}

// Normalize standardizes one raw extract. Structural problems (no user_id
// column, duplicate column names) are returned as errors; per-field parse
// problems are not.
func Normalize(raw *fetcher.Table, source model.Source) (*Extract, error) {
	if raw == nil {
		return nil, eris.Errorf("normalize: %s extract is nil", source)
	}

	header := make([]string, len(raw.Header))
	seen := make(map[string]bool, len(raw.Header))
	userIdx, weekIdx := -1, -1
	for i, h := range raw.Header {
		name := strings.ToLower(strings.TrimSpace(h))
		if seen[name] {
			return nil, eris.Errorf("normalize: %s extract has duplicate column %q", source, name)
		}
		seen[name] = true

		switch name {
		case model.ColUserID:
			userIdx = i
		case model.ColActivityWeek:
			weekIdx = i
		default:
			name = source.Prefix() + name
		}
		header[i] = name
	}
	if userIdx < 0 {
		return nil, eris.Errorf("normalize: %s extract has no user_id column", source)
	}

	ext := &Extract{Source: source}
	for i, name := range header {
		if i != userIdx && i != weekIdx {
			ext.Columns = append(ext.Columns, name)
		}
	}

	index := make(map[[2]string]int, len(raw.Rows))
	var blankIDs, duplicates int
	for n, row := range raw.Rows {
		if len(row) != len(header) {
			return nil, eris.Errorf("normalize: %s extract row %d has %d fields, want %d", source, n+2, len(row), len(header))
		}

		id := model.CanonicalUserID(row[userIdx])
		if id == "" {
			blankIDs++
			continue
		}
		week := ""
		if weekIdx >= 0 {
			week = NormalizeWeek(row[weekIdx])
		}

		values := make(map[string]string, len(ext.Columns))
		for i, name := range header {
			if i == userIdx || i == weekIdx {
				continue
			}
			values[name] = Relabel(name, strings.TrimSpace(row[i]))
		}

		key := [2]string{id, week}
		if at, ok := index[key]; ok {
			duplicates++
			collapse(ext.Records[at].Values, values)
			continue
		}
		index[key] = len(ext.Records)
		ext.Records = append(ext.Records, Record{UserID: id, Week: week, Values: values})
	}

	log := zap.L().With(zap.String("source", string(source)))
	if blankIDs > 0 {
		log.Warn("normalize: dropped records without user_id", zap.Int("count", blankIDs))
	}
	if duplicates > 0 {
		log.Warn("normalize: merged duplicate user/week records", zap.Int("count", duplicates))
	}
	log.Debug("normalize: extract normalized",
		zap.Int("records", len(ext.Records)),
		zap.Int("columns", len(ext.Columns)),
	)
	return ext, nil
}

// metricColumns holds the merged names of the weekly additive columns.
var metricColumns = func() map[string]bool {
	m := make(map[string]bool)
	for _, c := range model.Columns {
		if c.Class == model.ClassMetric {
			m[c.Merged] = true
		}
	}
	return m
}()

// collapse folds a duplicate record into dst. Metric columns are summed;
// everything else keeps the first non-blank value.
func collapse(dst, src map[string]string) {
	for k, v := range src {
		if v == "" {
			continue
		}
		cur := dst[k]
		if cur == "" {
			dst[k] = v
			continue
		}
		if !metricColumns[k] {
			continue
		}
		if sum, ok := addNumbers(cur, v); ok {
			dst[k] = sum
		}
	}
}

// addNumbers sums two numeric cells. It reports false when either side is
// not a finite number, leaving the caller's value in place.
func addNumbers(a, b string) (string, bool) {
	x, ok := parseCell(a)
	if !ok {
		return "", false
	}
	y, ok := parseCell(b)
	if !ok {
		return "", false
	}
	sum := x + y
	if sum == math.Trunc(sum) && math.Abs(sum) < 1<<53 {
		return strconv.FormatInt(int64(sum), 10), true
	}
	return strconv.FormatFloat(sum, 'f', -1, 64), true
}

func parseCell(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
