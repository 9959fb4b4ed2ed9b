package model

import (
	"time"
)

// ColumnClass decides how a column is reconciled across weeks and reduced
// across a user's rows.
type ColumnClass string

const (
	ClassKey     ColumnClass = "key"     // user_id, activity_week
	ClassProfile ColumnClass = "profile" // filled across weeks, first value on reduce
	ClassRate    ColumnClass = "rate"    // per-user pre-averaged, filled across weeks, first value on reduce
	ClassMetric  ColumnClass = "metric"  // weekly additive, zero-filled, summed on reduce
	ClassDerived ColumnClass = "derived" // computed from other columns, never merged
)

// ColumnKind is the value type of a column.
type ColumnKind string

const (
	KindString ColumnKind = "string"
	KindDate   ColumnKind = "date"
	KindInt    ColumnKind = "int"
	KindFloat  ColumnKind = "float"
)

// Source names the extract a merged column comes from.
type Source string

const (
	SourceActivity Source = "activity" // weekly activity metrics, no prefix
	SourceProfile  Source = "profile"  // user profile attributes, df2_ prefix
	SourceQuality  Source = "quality"  // weekly quality metrics, df3_ prefix
)

// Prefix returns the namespace prepended to the extract's non-key columns.
func (s Source) Prefix() string {
	switch s {
	case SourceProfile:
		return "df2_"
	case SourceQuality:
		return "df3_"
	}
	return ""
}

// Column describes one logical column of the fact table.
type Column struct {
	Name   string // store and API name
	Merged string // prefixed name after normalization; empty for key/derived columns
	Label  string // human readable export header
	Class  ColumnClass
	Kind   ColumnKind
	Export bool
}

// Column names used across packages.
const (
	ColUserID                    = "user_id"
	ColActivityWeek              = "activity_week"
	ColFullName                  = "full_name"
	ColUsername                  = "username"
	ColUserType                  = "user_type"
	ColRegistrationDate          = "registration_date"
	ColMembership                = "membership"
	ColCountry                   = "country"
	ColRegion                    = "region"
	ColProfileURL                = "profile_url"
	ColSocialLinks               = "social_links"
	ColTotalUploads              = "total_uploads"
	ColTotalLicensingSubmissions = "total_licensing_submissions"
	ColAvgAestheticScore         = "avg_aesthetic_score"
	ColAvgLAIScore               = "avg_lai_score"
	ColExclusivityRate           = "exclusivity_rate"
	ColAcceptanceRate            = "acceptance_rate"
	ColTotalNumOfSales           = "total_num_of_sales"
	ColTotalSalesRevenue         = "total_sales_revenue"
	ColPhotoLikes                = "photo_likes"
	ColComments                  = "comments"
	ColAvgVisitDaysMonthly       = "avg_visit_days_monthly"
	ColPhotosFeatured            = "photos_featured"
	ColGalleriesFeatured         = "galleries_featured"
	ColStoriesFeatured           = "stories_featured"
)

// Columns is the fixed column-to-class table. Its order is the export
// column order; activity_week is stored but never exported.
var Columns = []Column{
	{Name: ColUserID, Label: "User ID", Class: ClassKey, Kind: KindString, Export: true},
	{Name: ColUsername, Merged: "df2_username", Label: "Username", Class: ClassProfile, Kind: KindString, Export: true},
	{Name: ColFullName, Merged: "df2_full_name", Label: "Name", Class: ClassProfile, Kind: KindString, Export: true},
	{Name: ColUserType, Merged: "df2_user_type", Label: "User Type", Class: ClassProfile, Kind: KindString, Export: true},
	{Name: ColRegistrationDate, Merged: "df2_registration_date", Label: "Registration Date", Class: ClassProfile, Kind: KindDate, Export: true},
	{Name: ColMembership, Merged: "df2_membership", Label: "Membership", Class: ClassProfile, Kind: KindString, Export: true},
	{Name: ColCountry, Merged: "df2_country", Label: "Country", Class: ClassProfile, Kind: KindString, Export: true},
	{Name: ColRegion, Label: "Region", Class: ClassDerived, Kind: KindString, Export: true},
	{Name: ColProfileURL, Merged: "df2_profile_url", Label: "Profile URL", Class: ClassProfile, Kind: KindString, Export: true},
	{Name: ColSocialLinks, Merged: "df2_social_links", Label: "Social Links", Class: ClassProfile, Kind: KindString, Export: true},
	{Name: ColTotalUploads, Merged: "total_uploads", Label: "Uploads", Class: ClassMetric, Kind: KindInt, Export: true},
	{Name: ColTotalLicensingSubmissions, Merged: "total_licensing_submissions", Label: "Licensing Submissions", Class: ClassMetric, Kind: KindInt, Export: true},
	{Name: ColAvgAestheticScore, Merged: "df3_avg_aesthetic_score", Label: "Avg Aesthetic Score", Class: ClassRate, Kind: KindFloat, Export: true},
	{Name: ColAvgLAIScore, Merged: "df2_avg_lai_score", Label: "Avg LAI Score", Class: ClassRate, Kind: KindFloat, Export: true},
	{Name: ColExclusivityRate, Merged: "df2_exclusivity_rate", Label: "Exclusivity Rate", Class: ClassRate, Kind: KindFloat, Export: true},
	{Name: ColAcceptanceRate, Merged: "df2_acceptance_rate", Label: "Acceptance Rate", Class: ClassRate, Kind: KindFloat, Export: true},
	{Name: ColTotalNumOfSales, Merged: "total_num_of_sales", Label: "Sales", Class: ClassMetric, Kind: KindInt, Export: true},
	{Name: ColTotalSalesRevenue, Merged: "total_sales_revenue", Label: "Revenue", Class: ClassMetric, Kind: KindFloat, Export: true},
	{Name: ColPhotoLikes, Merged: "df3_photo_likes", Label: "Likes", Class: ClassMetric, Kind: KindInt, Export: true},
	{Name: ColComments, Merged: "df3_comments", Label: "Comments", Class: ClassMetric, Kind: KindInt, Export: true},
	{Name: ColAvgVisitDaysMonthly, Merged: "df3_avg_visit_days_monthly", Label: "Avg Visit Days Monthly", Class: ClassRate, Kind: KindFloat, Export: true},
	{Name: ColPhotosFeatured, Merged: "num_of_photos_featured", Label: "Photos Featured", Class: ClassMetric, Kind: KindInt, Export: true},
	{Name: ColGalleriesFeatured, Merged: "num_of_galleries_featured", Label: "Galleries Featured", Class: ClassMetric, Kind: KindInt, Export: true},
	{Name: ColStoriesFeatured, Merged: "num_of_stories_featured", Label: "Stories Featured", Class: ClassMetric, Kind: KindInt, Export: true},
	{Name: ColActivityWeek, Label: "Activity Week", Class: ClassKey, Kind: KindDate},
}

var columnsByName = func() map[string]Column {
	m := make(map[string]Column, len(Columns))
	for _, c := range Columns {
		m[c.Name] = c
	}
	return m
}()

// LookupColumn returns the column definition for name.
func LookupColumn(name string) (Column, bool) {
	c, ok := columnsByName[name]
	return c, ok
}

// ExportColumns returns the exported columns in export order.
func ExportColumns() []Column {
	out := make([]Column, 0, len(Columns))
	for _, c := range Columns {
		if c.Export {
			out = append(out, c)
		}
	}
	return out
}

// Value is a single typed cell read from an aggregate or fact row.
type Value struct {
	Kind ColumnKind
	Null bool
	Str  string
	Num  float64
	Time time.Time
}

func stringValue(s string) Value { return Value{Kind: KindString, Str: s, Null: s == ""} }
func intValue(n int64) Value     { return Value{Kind: KindInt, Num: float64(n)} }
func floatValue(f float64) Value { return Value{Kind: KindFloat, Num: f} }

func floatPtrValue(f *float64) Value {
	if f == nil {
		return Value{Kind: KindFloat, Null: true}
	}
	return Value{Kind: KindFloat, Num: *f}
}

func dateValue(t *time.Time) Value {
	if t == nil {
		return Value{Kind: KindDate, Null: true}
	}
	return Value{Kind: KindDate, Time: *t}
}

// Value reads the named column from the profile. ok is false when the
// column is not a profile, rate, or derived column.
func (p *Profile) Value(name string) (Value, bool) {
	switch name {
	case ColFullName:
		return stringValue(p.FullName), true
	case ColUsername:
		return stringValue(p.Username), true
	case ColUserType:
		return stringValue(p.UserType), true
	case ColRegistrationDate:
		return dateValue(p.RegistrationDate), true
	case ColMembership:
		return stringValue(p.Membership), true
	case ColCountry:
		return stringValue(p.Country), true
	case ColRegion:
		return stringValue(p.Region), true
	case ColProfileURL:
		return stringValue(p.ProfileURL), true
	case ColSocialLinks:
		return stringValue(p.SocialLinks), true
	case ColAvgAestheticScore:
		return floatPtrValue(p.AvgAestheticScore), true
	case ColAvgLAIScore:
		return floatPtrValue(p.AvgLAIScore), true
	case ColExclusivityRate:
		return floatPtrValue(p.ExclusivityRate), true
	case ColAcceptanceRate:
		return floatPtrValue(p.AcceptanceRate), true
	case ColAvgVisitDaysMonthly:
		return floatPtrValue(p.AvgVisitDaysMonthly), true
	}
	return Value{}, false
}

// Value reads the named metric column.
func (m *Metrics) Value(name string) (Value, bool) {
	switch name {
	case ColTotalUploads:
		return intValue(m.TotalUploads), true
	case ColTotalLicensingSubmissions:
		return intValue(m.TotalLicensingSubmissions), true
	case ColTotalNumOfSales:
		return intValue(m.TotalNumOfSales), true
	case ColTotalSalesRevenue:
		return floatValue(m.TotalSalesRevenue), true
	case ColPhotoLikes:
		return intValue(m.PhotoLikes), true
	case ColComments:
		return intValue(m.Comments), true
	case ColPhotosFeatured:
		return intValue(m.PhotosFeatured), true
	case ColGalleriesFeatured:
		return intValue(m.GalleriesFeatured), true
	case ColStoriesFeatured:
		return intValue(m.StoriesFeatured), true
	}
	return Value{}, false
}

// Value reads any column of the aggregate. Unknown names return a null
// string value.
func (a *UserAggregate) Value(name string) Value {
	if name == ColUserID {
		return stringValue(a.UserID)
	}
	if v, ok := a.Profile.Value(name); ok {
		return v
	}
	if v, ok := a.Metrics.Value(name); ok {
		return v
	}
	return Value{Kind: KindString, Null: true}
}
