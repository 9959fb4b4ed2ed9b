package mapping

import (
	"slices"
)

// RegionOrder is the display order of region options.
var RegionOrder = []string{
	"North America",
	"South America",
	"Northern Europe",
	"Southern Europe",
	"Western Europe",
	"Eastern Europe",
	"Africa",
	"Asia Pacific (excl. China & Indonesia)",
	"Rest of Asia",
	"China",
	"Indonesia",
	"Other",
}

// MembershipOrder is the display order of membership options.
var MembershipOrder = []string{
	"No membership",
	"Awesome - Monthly",
	"Awesome - Yearly",
	"Pro - Monthly",
	"Pro - Yearly",
	"Android - Monthly",
	"Android - Yearly",
	"iOS - Monthly",
	"iOS - Yearly",
	"Free Pro CX",
	"Free Awesome CX",
	"Trial - Awesome - M",
	"Trial - Awesome - Y",
	"Trial - Pro - M",
	"Trial - Pro - Y",
}

// OrderOptions returns the distinct non-empty values ordered by the fixed
// order, with values the order does not know appended alphabetically.
// Values in the order that are not present are left out.
func OrderOptions(values []string, order []string) []string {
	present := make(map[string]bool, len(values))
	for _, v := range values {
		if v != "" {
			present[v] = true
		}
	}

	out := make([]string, 0, len(present))
	for _, v := range order {
		if present[v] {
			out = append(out, v)
			delete(present, v)
		}
	}
	rest := make([]string, 0, len(present))
	for v := range present {
		rest = append(rest, v)
	}
	slices.Sort(rest)
	return append(out, rest...)
}
