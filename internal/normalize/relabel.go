package normalize

import "github.com/sells-group/user-dashboard/internal/model"

// relabels maps raw warehouse codes to display labels, keyed by prefixed
// column name. Applied once while normalizing.
var relabels = map[string]map[string]string{
	"df2_" + model.ColMembership: {
		"0":                                 "No membership",
		"Trial - Awesome Monthly - 30 Days": "Trial - Awesome - M",
		"Trial - Awesome Yearly - 30 Days":  "Trial - Awesome - Y",
		"Trial - Pro Monthly - 30 Days":     "Trial - Pro - M",
		"Trial - Pro Yearly - 30 Days":      "Trial - Pro - Y",
	},
	"df2_" + model.ColUserType: {
		"0": "Basic",
	},
	"df2_" + model.ColProfileURL: {
		"0": "",
	},
	"df2_" + model.ColSocialLinks: {
		"0": "",
	},
}

// Relabel returns the display label for a raw value of column.
func Relabel(column, value string) string {
	if table, ok := relabels[column]; ok {
		if label, ok := table[value]; ok {
			return label
		}
	}
	return value
}

// Defaults for profile fields that are still empty after reconciliation.
const (
	DefaultMembership = "No membership"
	DefaultUserType   = "Basic"
)

// ApplyDefaults fills the labels the warehouse leaves blank for users
// without a membership or a user type.
func ApplyDefaults(p *model.Profile) {
	if p.Membership == "" {
		p.Membership = DefaultMembership
	}
	if p.UserType == "" {
		p.UserType = DefaultUserType
	}
}
