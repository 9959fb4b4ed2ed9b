// Package query filters the fact table, reduces it to one aggregate per
// user, and orders the result.
package query

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"time"

	"github.com/sells-group/user-dashboard/internal/model"
)

// DateRange is an inclusive date interval. It only constrains rows when
// both bounds are set.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Active reports whether both bounds are present.
func (r DateRange) Active() bool { return r.From != nil && r.To != nil }

// Contains reports whether t lies inside the range. A nil t never matches.
func (r DateRange) Contains(t *time.Time) bool {
	if t == nil {
		return false
	}
	return !t.Before(*r.From) && !t.After(*r.To)
}

// Range is an inclusive numeric interval. A nil bound is unbounded on
// that side.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Active reports whether either bound is present.
func (r Range) Active() bool { return r.Min != nil || r.Max != nil }

// Contains reports whether v satisfies both bounds. A null value fails any
// active range.
func (r Range) Contains(v model.Value) bool {
	if !r.Active() {
		return true
	}
	if v.Null {
		return false
	}
	if r.Min != nil && v.Num < *r.Min {
		return false
	}
	if r.Max != nil && v.Num > *r.Max {
		return false
	}
	return true
}

// FilterState is the full set of predicate values of one filter request.
// The zero value matches every user and sorts by user id ascending.
type FilterState struct {
	Registration DateRange `json:"registration"`
	Activity     DateRange `json:"activity"`

	UserTypes   []string `json:"user_types,omitempty"`
	Regions     []string `json:"regions,omitempty"`
	Memberships []string `json:"memberships,omitempty"`

	// UserIDs is the parsed id search. Empty means no id predicate.
	UserIDs []string `json:"user_ids,omitempty"`

	// Ranges holds aggregate-level bounds keyed by metric or rate column.
	Ranges map[string]Range `json:"ranges,omitempty"`

	SortBy   string `json:"sort_by"`
	SortDesc bool   `json:"sort_desc"`
}

// DefaultFilter returns the filter a new or reset session starts with.
func DefaultFilter() FilterState {
	return FilterState{SortBy: model.ColUserID}
}

// RangeColumns returns the columns that accept aggregate range bounds:
// every weekly metric and every rate or score column.
func RangeColumns() []string {
	var out []string
	for _, c := range model.Columns {
		if c.Class == model.ClassMetric || c.Class == model.ClassRate {
			out = append(out, c.Name)
		}
	}
	return out
}

// IsRangeColumn reports whether name accepts range bounds.
func IsRangeColumn(name string) bool {
	c, ok := model.LookupColumn(name)
	return ok && (c.Class == model.ClassMetric || c.Class == model.ClassRate)
}

// IsSortColumn reports whether the result can be ordered by name.
func IsSortColumn(name string) bool {
	c, ok := model.LookupColumn(name)
	return ok && c.Export
}

// Key returns a stable digest of the filter, used to cache results. Set
// predicates are order-insensitive.
func (f FilterState) Key() string {
	c := f
	c.UserTypes = sortedCopy(f.UserTypes)
	c.Regions = sortedCopy(f.Regions)
	c.Memberships = sortedCopy(f.Memberships)
	c.UserIDs = sortedCopy(f.UserIDs)
	// encoding/json writes map keys sorted, so Ranges is deterministic.
	b, _ := json.Marshal(c)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
