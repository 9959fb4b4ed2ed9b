package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/user-dashboard/internal/db"
	"github.com/sells-group/user-dashboard/internal/model"
)

const factsTable = "user_facts"

// PostgresStore implements FactStore using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS user_facts (
	user_id                     TEXT NOT NULL,
	activity_week               DATE NOT NULL,
	full_name                   TEXT NOT NULL DEFAULT '',
	username                    TEXT NOT NULL DEFAULT '',
	user_type                   TEXT NOT NULL DEFAULT '',
	registration_date           DATE,
	membership                  TEXT NOT NULL DEFAULT '',
	country                     TEXT NOT NULL DEFAULT '',
	region                      TEXT NOT NULL DEFAULT '',
	profile_url                 TEXT NOT NULL DEFAULT '',
	social_links                TEXT NOT NULL DEFAULT '',
	avg_aesthetic_score         DOUBLE PRECISION,
	avg_lai_score               DOUBLE PRECISION,
	exclusivity_rate            DOUBLE PRECISION,
	acceptance_rate             DOUBLE PRECISION,
	avg_visit_days_monthly      DOUBLE PRECISION,
	total_uploads               BIGINT NOT NULL DEFAULT 0,
	total_licensing_submissions BIGINT NOT NULL DEFAULT 0,
	total_num_of_sales          BIGINT NOT NULL DEFAULT 0,
	total_sales_revenue         DOUBLE PRECISION NOT NULL DEFAULT 0,
	photo_likes                 BIGINT NOT NULL DEFAULT 0,
	comments                    BIGINT NOT NULL DEFAULT 0,
	photos_featured             BIGINT NOT NULL DEFAULT 0,
	galleries_featured          BIGINT NOT NULL DEFAULT 0,
	stories_featured            BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, activity_week)
);

CREATE TABLE IF NOT EXISTS materializations (
	id              TEXT PRIMARY KEY,
	row_count       BIGINT NOT NULL,
	materialized_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_user_facts_user_id ON user_facts(user_id);
CREATE INDEX IF NOT EXISTS idx_user_facts_user_type ON user_facts(user_type);
CREATE INDEX IF NOT EXISTS idx_user_facts_region ON user_facts(region);
CREATE INDEX IF NOT EXISTS idx_user_facts_membership ON user_facts(membership);
CREATE INDEX IF NOT EXISTS idx_user_facts_registration_date ON user_facts(registration_date);
CREATE INDEX IF NOT EXISTS idx_user_facts_activity_week ON user_facts(activity_week);
CREATE INDEX IF NOT EXISTS idx_materializations_at ON materializations(materialized_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func pgDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// ReplaceFacts deletes and re-copies the table inside one transaction, so
// concurrent readers keep seeing the previous generation until commit.
func (s *PostgresStore) ReplaceFacts(ctx context.Context, rows []model.FactRow) (*Generation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin replace")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM user_facts`); err != nil {
		return nil, eris.Wrap(err, "postgres: clear facts")
	}

	values := make([][]any, len(rows))
	for i := range rows {
		values[i] = factValues(&rows[i], pgDate)
	}
	if _, err := db.CopyFrom(ctx, tx, factsTable, factColumns, values); err != nil {
		return nil, eris.Wrap(err, "postgres: copy facts")
	}

	gen := &Generation{
		ID:             uuid.New().String(),
		Rows:           int64(len(rows)),
		MaterializedAt: time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO materializations (id, row_count, materialized_at) VALUES ($1, $2, $3)`,
		gen.ID, gen.Rows, gen.MaterializedAt,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: record generation")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit replace")
	}
	return gen, nil
}

func (s *PostgresStore) LoadFacts(ctx context.Context) ([]model.FactRow, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+strings.Join(factColumns, ", ")+" FROM user_facts")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load facts")
	}
	defer rows.Close()

	var out []model.FactRow
	for rows.Next() {
		r, err := scanPostgresFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate facts")
	}

	model.SortFacts(out)
	return out, nil
}

func (s *PostgresStore) CurrentGeneration(ctx context.Context) (*Generation, error) {
	var g Generation
	err := s.pool.QueryRow(ctx,
		`SELECT id, row_count, materialized_at FROM materializations ORDER BY materialized_at DESC LIMIT 1`,
	).Scan(&g.ID, &g.Rows, &g.MaterializedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: current generation")
	}
	return &g, nil
}

func scanPostgresFact(row pgx.Row) (*model.FactRow, error) {
	var (
		r       model.FactRow
		week    pgtype.Date
		regDate pgtype.Date
		rates   [5]pgtype.Float8
	)
	err := row.Scan(
		&r.UserID, &week,
		&r.FullName, &r.Username, &r.UserType, &regDate,
		&r.Membership, &r.Country, &r.Region, &r.ProfileURL, &r.SocialLinks,
		&rates[0], &rates[1], &rates[2], &rates[3], &rates[4],
		&r.TotalUploads, &r.TotalLicensingSubmissions, &r.TotalNumOfSales, &r.TotalSalesRevenue,
		&r.PhotoLikes, &r.Comments, &r.PhotosFeatured, &r.GalleriesFeatured, &r.StoriesFeatured,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan fact")
	}
	if !week.Valid {
		return nil, eris.Errorf("postgres: fact %s has null activity_week", r.UserID)
	}

	r.ActivityWeek = week.Time.UTC()
	if regDate.Valid {
		t := regDate.Time.UTC()
		r.RegistrationDate = &t
	}
	r.AvgAestheticScore = pgFloat(rates[0])
	r.AvgLAIScore = pgFloat(rates[1])
	r.ExclusivityRate = pgFloat(rates[2])
	r.AcceptanceRate = pgFloat(rates[3])
	r.AvgVisitDaysMonthly = pgFloat(rates[4])
	return &r, nil
}

func pgFloat(f pgtype.Float8) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
