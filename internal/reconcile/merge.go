// Package reconcile joins the normalized extracts into the fact table:
// one row per user per active week with profile attributes made
// consistent across a user's weeks and weekly metrics zero-filled.
package reconcile

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/user-dashboard/internal/model"
	"github.com/sells-group/user-dashboard/internal/normalize"
)

// Stats summarizes one merge.
type Stats struct {
	Joined           int // distinct (user_id, week) keys after the outer join
	DroppedEmptyWeek int
	Users            int
	Rows             int
	ParseFailures    int // metric or rate cells that could not be parsed
}

type joined struct {
	userID string
	week   string
	values map[string]string
}

// Merge outer-joins the three extracts on (user_id, activity_week) and
// reconciles the result. Extracts must all be non-nil.
func Merge(set *normalize.Set) ([]model.FactRow, Stats, error) {
	var stats Stats
	if set == nil || set.Activity == nil || set.Profile == nil || set.Quality == nil {
		return nil, stats, eris.New("reconcile: merge needs all three extracts")
	}

	rows, order := outerJoin(set.Activity, set.Profile, set.Quality)
	stats.Joined = len(rows)

	byUser := make(map[string][]*joined)
	var users []string
	for _, key := range order {
		j := rows[key]
		if _, ok := byUser[j.userID]; !ok {
			users = append(users, j.userID)
		}
		byUser[j.userID] = append(byUser[j.userID], j)
	}

	p := &parser{}
	var out []model.FactRow
	for _, id := range users {
		group := byUser[id]
		slices.SortStableFunc(group, func(a, b *joined) int { return strings.Compare(a.week, b.week) })

		// First non-missing value in week order wins for every profile and
		// rate column, and is carried to all of the user's weeks.
		var profile model.Profile
		for _, j := range group {
			profile.Fill(p.profile(j.values))
		}
		normalize.ApplyDefaults(&profile)

		for _, j := range group {
			if j.week == "" {
				stats.DroppedEmptyWeek++
				continue
			}
			week, ok := normalize.ParseDate(j.week)
			if !ok {
				stats.DroppedEmptyWeek++
				continue
			}
			out = append(out, model.FactRow{
				UserID:       id,
				ActivityWeek: week,
				Profile:      profile,
				Metrics:      p.metrics(j.values),
			})
		}
	}

	model.SortFacts(out)

	stats.Rows = len(out)
	stats.ParseFailures = p.failures
	seen := make(map[string]struct{}, len(users))
	for i := range out {
		seen[out[i].UserID] = struct{}{}
	}
	stats.Users = len(seen)

	zap.L().Info("reconcile: merge complete",
		zap.Int("joined", stats.Joined),
		zap.Int("rows", stats.Rows),
		zap.Int("users", stats.Users),
		zap.Int("dropped_empty_week", stats.DroppedEmptyWeek),
		zap.Int("parse_failures", stats.ParseFailures),
	)
	return out, stats, nil
}

// outerJoin combines the extracts keyed by (user_id, week). Key order is
// first appearance across the extracts in argument order.
func outerJoin(extracts ...*normalize.Extract) (map[[2]string]*joined, [][2]string) {
	rows := make(map[[2]string]*joined)
	var order [][2]string
	for _, ext := range extracts {
		for _, rec := range ext.Records {
			key := [2]string{rec.UserID, rec.Week}
			j, ok := rows[key]
			if !ok {
				j = &joined{userID: rec.UserID, week: rec.Week, values: make(map[string]string)}
				rows[key] = j
				order = append(order, key)
			}
			for k, v := range rec.Values {
				j.values[k] = v
			}
		}
	}
	return rows, order
}
