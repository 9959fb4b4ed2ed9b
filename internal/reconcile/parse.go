package reconcile

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/user-dashboard/internal/model"
	"github.com/sells-group/user-dashboard/internal/normalize"
)

// parser converts joined string cells into typed values, counting cells
// that were present but unparseable.
type parser struct {
	failures int
}

func (p *parser) profile(values map[string]string) model.Profile {
	var out model.Profile
	for _, col := range model.Columns {
		if col.Merged == "" || (col.Class != model.ClassProfile && col.Class != model.ClassRate) {
			continue
		}
		raw := strings.TrimSpace(values[col.Merged])
		if raw == "" {
			continue
		}
		switch col.Kind {
		case model.KindString:
			setString(&out, col.Name, raw)
		case model.KindDate:
			if t, ok := normalize.ParseDate(raw); ok {
				out.RegistrationDate = &t
			} else {
				p.failures++
			}
		case model.KindFloat, model.KindInt:
			if f, ok := parseNumber(raw); ok {
				setRate(&out, col.Name, f)
			} else {
				p.failures++
			}
		}
	}
	return out
}

func (p *parser) metrics(values map[string]string) model.Metrics {
	var m model.Metrics
	for _, col := range model.Columns {
		if col.Class != model.ClassMetric {
			continue
		}
		raw := strings.TrimSpace(values[col.Merged])
		if raw == "" {
			continue
		}
		f, ok := parseNumber(raw)
		if !ok {
			p.failures++
			continue
		}
		setMetric(&m, col.Name, f)
	}
	return m
}

func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func setString(p *model.Profile, name, v string) {
	switch name {
	case model.ColFullName:
		p.FullName = v
	case model.ColUsername:
		p.Username = v
	case model.ColUserType:
		p.UserType = v
	case model.ColMembership:
		p.Membership = v
	case model.ColCountry:
		p.Country = v
	case model.ColProfileURL:
		p.ProfileURL = v
	case model.ColSocialLinks:
		p.SocialLinks = v
	}
}

func setRate(p *model.Profile, name string, f float64) {
	v := f
	switch name {
	case model.ColAvgAestheticScore:
		p.AvgAestheticScore = &v
	case model.ColAvgLAIScore:
		p.AvgLAIScore = &v
	case model.ColExclusivityRate:
		p.ExclusivityRate = &v
	case model.ColAcceptanceRate:
		p.AcceptanceRate = &v
	case model.ColAvgVisitDaysMonthly:
		p.AvgVisitDaysMonthly = &v
	}
}

func setMetric(m *model.Metrics, name string, f float64) {
	n := int64(math.Round(f))
	switch name {
	case model.ColTotalUploads:
		m.TotalUploads = n
	case model.ColTotalLicensingSubmissions:
		m.TotalLicensingSubmissions = n
	case model.ColTotalNumOfSales:
		m.TotalNumOfSales = n
	case model.ColTotalSalesRevenue:
		m.TotalSalesRevenue = f
	case model.ColPhotoLikes:
		m.PhotoLikes = n
	case model.ColComments:
		m.Comments = n
	case model.ColPhotosFeatured:
		m.PhotosFeatured = n
	case model.ColGalleriesFeatured:
		m.GalleriesFeatured = n
	case model.ColStoriesFeatured:
		m.StoriesFeatured = n
	}
}
