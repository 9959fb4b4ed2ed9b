package query

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/sells-group/user-dashboard/internal/model"
	"github.com/sells-group/user-dashboard/internal/normalize"
)

// Bound is a loosely typed numeric bound as sent by a client: a JSON
// number, a string, or null.
type Bound string

// UnmarshalJSON accepts numbers, strings, and null.
func (b *Bound) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*b = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = Bound(s)
	default:
		*b = Bound(data)
	}
	return nil
}

// RawRange is an unvalidated min/max pair.
type RawRange struct {
	Min Bound `json:"min"`
	Max Bound `json:"max"`
}

// RawFilter is a filter request as received at the HTTP boundary.
type RawFilter struct {
	RegistrationFrom string              `json:"registration_from"`
	RegistrationTo   string              `json:"registration_to"`
	ActivityFrom     string              `json:"activity_from"`
	ActivityTo       string              `json:"activity_to"`
	UserTypes        []string            `json:"user_types"`
	Regions          []string            `json:"regions"`
	Memberships      []string            `json:"memberships"`
	IDSearch         string              `json:"id_search"`
	Ranges           map[string]RawRange `json:"ranges"`
	SortBy           string              `json:"sort_by"`
	SortDir          string              `json:"sort_dir"`
}

// Issue records one predicate input that was ignored.
type Issue struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// ParseFilter validates raw once and returns the typed filter. Invalid
// inputs never fail the request: the affected predicate is left unbounded
// and reported as an Issue.
func ParseFilter(raw RawFilter) (FilterState, []Issue) {
	fs := DefaultFilter()
	var issues []Issue

	fs.Registration, issues = parseDateRange("registration", raw.RegistrationFrom, raw.RegistrationTo, issues)
	fs.Activity, issues = parseDateRange("activity", raw.ActivityFrom, raw.ActivityTo, issues)

	fs.UserTypes = cleanSet(raw.UserTypes)
	fs.Regions = cleanSet(raw.Regions)
	fs.Memberships = cleanSet(raw.Memberships)

	if strings.TrimSpace(raw.IDSearch) != "" {
		fs.UserIDs = ParseIDSearch(raw.IDSearch)
		if len(fs.UserIDs) == 0 {
			issues = append(issues, Issue{Field: "id_search", Value: raw.IDSearch, Reason: "no valid user ids"})
		}
	}

	for col, rr := range raw.Ranges {
		if !IsRangeColumn(col) {
			issues = append(issues, Issue{Field: col, Reason: "not a range column"})
			continue
		}
		var r Range
		r.Min, issues = parseBound(col+".min", rr.Min, issues)
		r.Max, issues = parseBound(col+".max", rr.Max, issues)
		if r.Active() {
			if fs.Ranges == nil {
				fs.Ranges = make(map[string]Range)
			}
			fs.Ranges[col] = r
		}
	}

	if raw.SortBy != "" {
		if IsSortColumn(raw.SortBy) {
			fs.SortBy = raw.SortBy
		} else {
			issues = append(issues, Issue{Field: "sort_by", Value: raw.SortBy, Reason: "unknown column"})
		}
	}
	switch strings.ToLower(strings.TrimSpace(raw.SortDir)) {
	case "", "asc":
	case "desc":
		fs.SortDesc = true
	default:
		issues = append(issues, Issue{Field: "sort_dir", Value: raw.SortDir, Reason: "expected asc or desc"})
	}

	return fs, issues
}

// ParseIDSearch splits text on commas and whitespace and keeps the tokens
// that are valid user ids, deduplicated in input order.
func ParseIDSearch(text string) []string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	seen := make(map[string]bool, len(tokens))
	var out []string
	for _, tok := range tokens {
		id := model.CanonicalUserID(tok)
		if !model.ValidUserID(id) || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func parseDateRange(field, from, to string, issues []Issue) (DateRange, []Issue) {
	var r DateRange
	if s := strings.TrimSpace(from); s != "" {
		if t, ok := normalize.ParseDate(s); ok {
			r.From = &t
		} else {
			issues = append(issues, Issue{Field: field + "_from", Value: from, Reason: "unparseable date"})
		}
	}
	if s := strings.TrimSpace(to); s != "" {
		if t, ok := normalize.ParseDate(s); ok {
			r.To = &t
		} else {
			issues = append(issues, Issue{Field: field + "_to", Value: to, Reason: "unparseable date"})
		}
	}
	return r, issues
}

func parseBound(field string, b Bound, issues []Issue) (*float64, []Issue) {
	s := strings.ReplaceAll(strings.TrimSpace(string(b)), ",", "")
	s = strings.TrimSuffix(strings.TrimPrefix(s, "$"), "%")
	if s == "" {
		return nil, issues
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, append(issues, Issue{Field: field, Value: string(b), Reason: "not a number"})
	}
	return &f, issues
}

func cleanSet(values []string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
