package query

import (
	"cmp"
	"slices"
	"strings"

	"github.com/sells-group/user-dashboard/internal/model"
	"github.com/sells-group/user-dashboard/internal/snapshot"
)

// rowFilter holds the row-level predicates of a FilterState in lookup form.
type rowFilter struct {
	fs          *FilterState
	userTypes   map[string]bool
	regions     map[string]bool
	memberships map[string]bool
}

func newRowFilter(fs *FilterState) *rowFilter {
	return &rowFilter{
		fs:          fs,
		userTypes:   toSet(fs.UserTypes),
		regions:     toSet(fs.Regions),
		memberships: toSet(fs.Memberships),
	}
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

func (f *rowFilter) match(r *model.FactRow) bool {
	if f.fs.Registration.Active() && !f.fs.Registration.Contains(r.RegistrationDate) {
		return false
	}
	if f.fs.Activity.Active() && !f.fs.Activity.Contains(&r.ActivityWeek) {
		return false
	}
	if f.userTypes != nil && !f.userTypes[r.UserType] {
		return false
	}
	if f.regions != nil && !f.regions[r.Region] {
		return false
	}
	if f.memberships != nil && !f.memberships[r.Membership] {
		return false
	}
	return true
}

// reduce aggregates the rows of id that pass the row predicates. ok is
// false when none pass.
func (f *rowFilter) reduce(t *snapshot.FactTable, id string) (model.UserAggregate, bool) {
	agg := model.UserAggregate{UserID: id}
	for _, i := range t.UserRows(id) {
		r := &t.Rows[i]
		if !f.match(r) {
			continue
		}
		agg.Weeks++
		agg.Profile.Fill(r.Profile)
		agg.Metrics.Add(r.Metrics)
	}
	return agg, agg.Weeks > 0
}

// candidates returns the users to consider: the searched ids that exist,
// or every user.
func candidates(t *snapshot.FactTable, fs *FilterState) []string {
	if len(fs.UserIDs) == 0 {
		return t.UserIDs()
	}
	out := make([]string, 0, len(fs.UserIDs))
	for _, id := range fs.UserIDs {
		if t.HasUser(id) {
			out = append(out, id)
		}
	}
	return out
}

func matchRanges(a *model.UserAggregate, ranges map[string]Range) bool {
	for col, r := range ranges {
		if !r.Contains(a.Value(col)) {
			return false
		}
	}
	return true
}

// Run filters t and returns the matching aggregates in sort order. Row
// predicates run first, then rows are reduced per user, then aggregate
// ranges apply. An empty table yields an empty result.
func Run(t *snapshot.FactTable, fs FilterState) []model.UserAggregate {
	if t == nil || t.IsEmpty() {
		return nil
	}
	rf := newRowFilter(&fs)

	var out []model.UserAggregate
	for _, id := range candidates(t, &fs) {
		agg, ok := rf.reduce(t, id)
		if !ok || !matchRanges(&agg, fs.Ranges) {
			continue
		}
		out = append(out, agg)
	}
	SortAggregates(out, fs.SortBy, fs.SortDesc)
	return out
}

// Filter returns the ordered ids matching fs.
func Filter(t *snapshot.FactTable, fs FilterState) []string {
	aggs := Run(t, fs)
	ids := make([]string, len(aggs))
	for i := range aggs {
		ids[i] = aggs[i].UserID
	}
	return ids
}

// Aggregate reduces the given users under the row predicates of fs and
// returns them in the order of ids. Users with no rows in scope are left
// out. It reproduces exactly the aggregates Run computed for those ids.
func Aggregate(t *snapshot.FactTable, fs FilterState, ids []string) []model.UserAggregate {
	if t == nil || t.IsEmpty() {
		return nil
	}
	rf := newRowFilter(&fs)
	out := make([]model.UserAggregate, 0, len(ids))
	for _, id := range ids {
		if agg, ok := rf.reduce(t, id); ok {
			out = append(out, agg)
		}
	}
	return out
}

// SortAggregates orders aggs by column, nulls last in both directions,
// with ties broken by ascending user id. An unknown column sorts by user id.
func SortAggregates(aggs []model.UserAggregate, column string, desc bool) {
	if !IsSortColumn(column) {
		column, desc = model.ColUserID, false
	}
	slices.SortStableFunc(aggs, func(a, b model.UserAggregate) int {
		if c := compareValues(column, a.Value(column), b.Value(column), desc); c != 0 {
			return c
		}
		return model.CompareUserIDs(a.UserID, b.UserID)
	})
}

func compareValues(column string, a, b model.Value, desc bool) int {
	switch {
	case a.Null && b.Null:
		return 0
	case a.Null:
		return 1
	case b.Null:
		return -1
	}

	var c int
	switch {
	case column == model.ColUserID:
		c = model.CompareUserIDs(a.Str, b.Str)
	case a.Kind == model.KindString:
		c = strings.Compare(strings.ToLower(a.Str), strings.ToLower(b.Str))
	case a.Kind == model.KindDate:
		c = a.Time.Compare(b.Time)
	default:
		c = cmp.Compare(a.Num, b.Num)
	}
	if desc {
		return -c
	}
	return c
}
