// Package store persists the reconciled fact table and records each
// materialization as a generation.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/user-dashboard/internal/model"
)

// Generation identifies one materialization of the fact table. Readers
// compare generation ids to decide whether a cached snapshot is stale.
type Generation struct {
	ID             string    `json:"id"`
	Rows           int64     `json:"rows"`
	MaterializedAt time.Time `json:"materialized_at"`
}

// FactStore is the durable home of the fact table.
type FactStore interface {
	// ReplaceFacts atomically replaces the whole table and records a new
	// generation. Readers never observe a partially written table.
	ReplaceFacts(ctx context.Context, rows []model.FactRow) (*Generation, error)
	// LoadFacts returns every row ordered by numeric user id, then week.
	LoadFacts(ctx context.Context) ([]model.FactRow, error)
	// CurrentGeneration returns the latest generation, or nil when the
	// table was never materialized.
	CurrentGeneration(ctx context.Context) (*Generation, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the configured backend. The schema is not migrated.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (FactStore, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLite(dsn)
	case DriverPostgres:
		return NewPostgres(ctx, dsn, poolCfg)
	}
	return nil, eris.Errorf("store: unknown driver %q", driver)
}

// factColumns is the physical column order of user_facts.
var factColumns = []string{
	model.ColUserID,
	model.ColActivityWeek,
	model.ColFullName,
	model.ColUsername,
	model.ColUserType,
	model.ColRegistrationDate,
	model.ColMembership,
	model.ColCountry,
	model.ColRegion,
	model.ColProfileURL,
	model.ColSocialLinks,
	model.ColAvgAestheticScore,
	model.ColAvgLAIScore,
	model.ColExclusivityRate,
	model.ColAcceptanceRate,
	model.ColAvgVisitDaysMonthly,
	model.ColTotalUploads,
	model.ColTotalLicensingSubmissions,
	model.ColTotalNumOfSales,
	model.ColTotalSalesRevenue,
	model.ColPhotoLikes,
	model.ColComments,
	model.ColPhotosFeatured,
	model.ColGalleriesFeatured,
	model.ColStoriesFeatured,
}

// factValues encodes a row in factColumns order. Dates are passed through
// dateFn so each backend can choose its representation.
func factValues(r *model.FactRow, dateFn func(*time.Time) any) []any {
	week := r.ActivityWeek
	return []any{
		r.UserID,
		dateFn(&week),
		r.FullName,
		r.Username,
		r.UserType,
		dateFn(r.RegistrationDate),
		r.Membership,
		r.Country,
		r.Region,
		r.ProfileURL,
		r.SocialLinks,
		r.AvgAestheticScore,
		r.AvgLAIScore,
		r.ExclusivityRate,
		r.AcceptanceRate,
		r.AvgVisitDaysMonthly,
		r.TotalUploads,
		r.TotalLicensingSubmissions,
		r.TotalNumOfSales,
		r.TotalSalesRevenue,
		r.PhotoLikes,
		r.Comments,
		r.PhotosFeatured,
		r.GalleriesFeatured,
		r.StoriesFeatured,
	}
}
