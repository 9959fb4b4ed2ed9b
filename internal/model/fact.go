package model

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical date form used for activity weeks,
// registration dates, and every exported date.
const DateLayout = "2006-01-02"

// Profile holds the slowly-changing user attributes. After reconciliation
// every week of a user carries the same Profile. Empty strings and nil
// pointers are the null sentinels.
type Profile struct {
	FullName         string     `json:"full_name"`
	Username         string     `json:"username"`
	UserType         string     `json:"user_type"`
	RegistrationDate *time.Time `json:"registration_date,omitempty"`
	Membership       string     `json:"membership"`
	Country          string     `json:"country"`
	Region           string     `json:"region"`
	ProfileURL       string     `json:"profile_url"`
	SocialLinks      string     `json:"social_links"`

	// Per-user rates and scores, already averaged upstream.
	AvgAestheticScore   *float64 `json:"avg_aesthetic_score,omitempty"`
	AvgLAIScore         *float64 `json:"avg_lai_score,omitempty"`
	ExclusivityRate     *float64 `json:"exclusivity_rate,omitempty"`
	AcceptanceRate      *float64 `json:"acceptance_rate,omitempty"`
	AvgVisitDaysMonthly *float64 `json:"avg_visit_days_monthly,omitempty"`
}

// Fill copies each field of src into p where p's field is still null.
// Applying Fill over a sequence keeps the first non-null value per field.
func (p *Profile) Fill(src Profile) {
	fillString(&p.FullName, src.FullName)
	fillString(&p.Username, src.Username)
	fillString(&p.UserType, src.UserType)
	fillString(&p.Membership, src.Membership)
	fillString(&p.Country, src.Country)
	fillString(&p.Region, src.Region)
	fillString(&p.ProfileURL, src.ProfileURL)
	fillString(&p.SocialLinks, src.SocialLinks)
	if p.RegistrationDate == nil {
		p.RegistrationDate = src.RegistrationDate
	}
	fillFloat(&p.AvgAestheticScore, src.AvgAestheticScore)
	fillFloat(&p.AvgLAIScore, src.AvgLAIScore)
	fillFloat(&p.ExclusivityRate, src.ExclusivityRate)
	fillFloat(&p.AcceptanceRate, src.AcceptanceRate)
	fillFloat(&p.AvgVisitDaysMonthly, src.AvgVisitDaysMonthly)
}

func fillString(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

func fillFloat(dst **float64, src *float64) {
	if *dst == nil {
		*dst = src
	}
}

// Metrics holds the additive weekly activity counters. A week with no
// activity record contributes zeros.
type Metrics struct {
	TotalUploads              int64   `json:"total_uploads"`
	TotalLicensingSubmissions int64   `json:"total_licensing_submissions"`
	TotalNumOfSales           int64   `json:"total_num_of_sales"`
	TotalSalesRevenue         float64 `json:"total_sales_revenue"`
	PhotoLikes                int64   `json:"photo_likes"`
	Comments                  int64   `json:"comments"`
	PhotosFeatured            int64   `json:"photos_featured"`
	GalleriesFeatured         int64   `json:"galleries_featured"`
	StoriesFeatured           int64   `json:"stories_featured"`
}

// Add accumulates o into m.
func (m *Metrics) Add(o Metrics) {
	m.TotalUploads += o.TotalUploads
	m.TotalLicensingSubmissions += o.TotalLicensingSubmissions
	m.TotalNumOfSales += o.TotalNumOfSales
	m.TotalSalesRevenue += o.TotalSalesRevenue
	m.PhotoLikes += o.PhotoLikes
	m.Comments += o.Comments
	m.PhotosFeatured += o.PhotosFeatured
	m.GalleriesFeatured += o.GalleriesFeatured
	m.StoriesFeatured += o.StoriesFeatured
}

// FactRow is one reconciled (user, activity week) record.
type FactRow struct {
	UserID       string    `json:"user_id"`
	ActivityWeek time.Time `json:"activity_week"`
	Profile
	Metrics
}

// Week returns the activity week in DateLayout form.
func (r FactRow) Week() string {
	return r.ActivityWeek.Format(DateLayout)
}

// UserAggregate is one user reduced over the fact rows in scope: profile
// fields take the first non-null value, metrics are summed, and rate and
// score fields take the first non-null value.
type UserAggregate struct {
	UserID string `json:"user_id"`
	Weeks  int    `json:"weeks"`
	Profile
	Metrics
}

// CanonicalUserID trims an identifier and drops a float suffix such as
// "233.0" that spreadsheet and dataframe exports tend to introduce.
func CanonicalUserID(raw string) string {
	id := strings.TrimSpace(raw)
	if head, tail, ok := strings.Cut(id, "."); ok && head != "" && strings.Trim(tail, "0") == "" {
		if _, err := strconv.ParseUint(head, 10, 64); err == nil {
			return head
		}
	}
	return id
}

// ValidUserID reports whether id is a well-formed numeric user identifier.
func ValidUserID(id string) bool {
	if id == "" {
		return false
	}
	_, err := strconv.ParseUint(id, 10, 64)
	return err == nil
}

// CompareUserIDs orders identifiers numerically, falling back to a plain
// string comparison. Numeric ids sort before non-numeric ones.
func CompareUserIDs(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// SortFacts orders rows by numeric user id, then week.
func SortFacts(rows []FactRow) {
	slices.SortStableFunc(rows, func(a, b FactRow) int {
		if c := CompareUserIDs(a.UserID, b.UserID); c != 0 {
			return c
		}
		return a.ActivityWeek.Compare(b.ActivityWeek)
	})
}
