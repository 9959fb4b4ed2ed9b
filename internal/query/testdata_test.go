package query

import (
	"time"

	"github.com/sells-group/user-dashboard/internal/model"
	"github.com/sells-group/user-dashboard/internal/snapshot"
)

func ptr[T any](v T) *T { return &v }

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

var (
	weekA = day("2024-01-01")
	weekB = day("2024-01-08")
)

// fixture has three users. User 1 uploads 5 in week A and 3 in week B.
func fixture() *snapshot.FactTable {
	p1 := model.Profile{
		Username: "ada", UserType: "Basic", Membership: "Pro - Yearly",
		Country: "Australia", Region: "Asia Pacific",
		RegistrationDate:  ptr(day("2020-05-01")),
		AvgAestheticScore: ptr(7.5), ExclusivityRate: ptr(40.0),
	}
	p2 := model.Profile{
		Username: "bob", UserType: "Pro", Membership: "No membership",
		Country: "Germany", Region: "Western Europe",
		RegistrationDate:  ptr(day("2022-02-10")),
		AvgAestheticScore: ptr(5.0),
	}
	p3 := model.Profile{
		Username: "cy", UserType: "Basic", Membership: "Awesome - Monthly",
		Country: "Unknown", Region: "Other",
	}
	rows := []model.FactRow{
		{UserID: "1", ActivityWeek: weekA, Profile: p1, Metrics: model.Metrics{TotalUploads: 5, TotalSalesRevenue: 10.5, PhotoLikes: 100}},
		{UserID: "1", ActivityWeek: weekB, Profile: p1, Metrics: model.Metrics{TotalUploads: 3, TotalSalesRevenue: 2, PhotoLikes: 20}},
		{UserID: "2", ActivityWeek: weekA, Profile: p2, Metrics: model.Metrics{TotalUploads: 2, PhotoLikes: 7}},
		{UserID: "2", ActivityWeek: weekB, Profile: p2, Metrics: model.Metrics{TotalUploads: 1}},
		{UserID: "3", ActivityWeek: weekB, Profile: p3, Metrics: model.Metrics{TotalUploads: 6, TotalSalesRevenue: 1234.5}},
	}
	return snapshot.NewFactTable(rows, "gen-1", time.Now())
}
