package store

import (
	"time"

	"github.com/sells-group/user-dashboard/internal/model"
)

func ptr[T any](v T) *T { return &v }

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleFacts() []model.FactRow {
	reg := day("2020-05-01")
	profile := model.Profile{
		FullName:         "Ada Lovelace",
		Username:         "ada",
		UserType:         "Pro",
		RegistrationDate: &reg,
		Membership:       "Pro - Monthly",
		Country:          "France",
		Region:           "Western Europe",
		AvgLAIScore:      ptr(7.5),
		AcceptanceRate:   ptr(42.0),
	}
	return []model.FactRow{
		{UserID: "10", ActivityWeek: day("2024-01-01"), Profile: model.Profile{UserType: "Basic", Membership: "No membership"},
			Metrics: model.Metrics{TotalUploads: 1}},
		{UserID: "2", ActivityWeek: day("2024-01-08"), Profile: profile, Metrics: model.Metrics{TotalUploads: 3, TotalSalesRevenue: 1.25}},
		{UserID: "2", ActivityWeek: day("2024-01-01"), Profile: profile, Metrics: model.Metrics{TotalUploads: 5, PhotoLikes: 9}},
	}
}
