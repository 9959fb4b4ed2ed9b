package query

import (
	"time"

	"github.com/sells-group/user-dashboard/internal/mapping"
	"github.com/sells-group/user-dashboard/internal/snapshot"
)

// DateBounds is the earliest and latest date present in a column.
type DateBounds struct {
	Min *time.Time `json:"min,omitempty"`
	Max *time.Time `json:"max,omitempty"`
}

func (b *DateBounds) observe(t *time.Time) {
	if t == nil {
		return
	}
	if b.Min == nil || t.Before(*b.Min) {
		v := *t
		b.Min = &v
	}
	if b.Max == nil || t.After(*b.Max) {
		v := *t
		b.Max = &v
	}
}

// NumBounds is the smallest and largest per-user value of a range column.
type NumBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Options are the choices offered by the filter widgets.
type Options struct {
	UserTypes    []string             `json:"user_types"`
	Regions      []string             `json:"regions"`
	Memberships  []string             `json:"memberships"`
	Registration DateBounds           `json:"registration"`
	Activity     DateBounds           `json:"activity"`
	Ranges       map[string]NumBounds `json:"ranges"`
}

// BuildOptions derives the option sets and bounds from the whole table.
// User types are alphabetical; regions and memberships follow the fixed
// business order.
func BuildOptions(t *snapshot.FactTable) Options {
	opts := Options{
		UserTypes:   []string{},
		Regions:     []string{},
		Memberships: []string{},
		Ranges:      map[string]NumBounds{},
	}
	if t == nil || t.IsEmpty() {
		return opts
	}

	var types, regions, memberships []string
	for i := range t.Rows {
		r := &t.Rows[i]
		types = append(types, r.UserType)
		regions = append(regions, r.Region)
		memberships = append(memberships, r.Membership)
		opts.Registration.observe(r.RegistrationDate)
		opts.Activity.observe(&r.ActivityWeek)
	}
	opts.UserTypes = mapping.OrderOptions(types, nil)
	opts.Regions = mapping.OrderOptions(regions, mapping.RegionOrder)
	opts.Memberships = mapping.OrderOptions(memberships, mapping.MembershipOrder)

	aggs := Run(t, DefaultFilter())
	for _, col := range RangeColumns() {
		var b NumBounds
		seen := false
		for i := range aggs {
			v := aggs[i].Value(col)
			if v.Null {
				continue
			}
			if !seen {
				b = NumBounds{Min: v.Num, Max: v.Num}
				seen = true
				continue
			}
			b.Min = min(b.Min, v.Num)
			b.Max = max(b.Max, v.Num)
		}
		if seen {
			opts.Ranges[col] = b
		}
	}
	return opts
}
