package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/user-dashboard/internal/model"
)

// SQLiteStore implements FactStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS user_facts (
	user_id                     TEXT NOT NULL,
	activity_week               TEXT NOT NULL,
	full_name                   TEXT NOT NULL DEFAULT '',
	username                    TEXT NOT NULL DEFAULT '',
	user_type                   TEXT NOT NULL DEFAULT '',
	registration_date           TEXT,
	membership                  TEXT NOT NULL DEFAULT '',
	country                     TEXT NOT NULL DEFAULT '',
	region                      TEXT NOT NULL DEFAULT '',
	profile_url                 TEXT NOT NULL DEFAULT '',
	social_links                TEXT NOT NULL DEFAULT '',
	avg_aesthetic_score         REAL,
	avg_lai_score               REAL,
	exclusivity_rate            REAL,
	acceptance_rate             REAL,
	avg_visit_days_monthly      REAL,
	total_uploads               INTEGER NOT NULL DEFAULT 0,
	total_licensing_submissions INTEGER NOT NULL DEFAULT 0,
	total_num_of_sales          INTEGER NOT NULL DEFAULT 0,
	total_sales_revenue         REAL NOT NULL DEFAULT 0,
	photo_likes                 INTEGER NOT NULL DEFAULT 0,
	comments                    INTEGER NOT NULL DEFAULT 0,
	photos_featured             INTEGER NOT NULL DEFAULT 0,
	galleries_featured          INTEGER NOT NULL DEFAULT 0,
	stories_featured            INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, activity_week)
);

CREATE TABLE IF NOT EXISTS materializations (
	id              TEXT PRIMARY KEY,
	row_count       INTEGER NOT NULL,
	materialized_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_user_facts_user_id ON user_facts(user_id);
CREATE INDEX IF NOT EXISTS idx_user_facts_user_type ON user_facts(user_type);
CREATE INDEX IF NOT EXISTS idx_user_facts_region ON user_facts(region);
CREATE INDEX IF NOT EXISTS idx_user_facts_membership ON user_facts(membership);
CREATE INDEX IF NOT EXISTS idx_user_facts_registration_date ON user_facts(registration_date);
CREATE INDEX IF NOT EXISTS idx_user_facts_activity_week ON user_facts(activity_week);
CREATE INDEX IF NOT EXISTS idx_materializations_at ON materializations(materialized_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sqliteDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(model.DateLayout)
}

var sqliteInsert = fmt.Sprintf(
	"INSERT INTO user_facts (%s) VALUES (%s)",
	strings.Join(factColumns, ", "),
	strings.TrimSuffix(strings.Repeat("?, ", len(factColumns)), ", "),
)

func (s *SQLiteStore) ReplaceFacts(ctx context.Context, rows []model.FactRow) (*Generation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin replace")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_facts`); err != nil {
		return nil, eris.Wrap(err, "sqlite: clear facts")
	}

	stmt, err := tx.PrepareContext(ctx, sqliteInsert)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range rows {
		if _, err := stmt.ExecContext(ctx, factValues(&rows[i], sqliteDate)...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert fact %s/%s", rows[i].UserID, rows[i].Week())
		}
	}

	gen := &Generation{
		ID:             uuid.New().String(),
		Rows:           int64(len(rows)),
		MaterializedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO materializations (id, row_count, materialized_at) VALUES (?, ?, ?)`,
		gen.ID, gen.Rows, gen.MaterializedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: record generation")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit replace")
	}
	return gen, nil
}

func (s *SQLiteStore) LoadFacts(ctx context.Context) ([]model.FactRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+strings.Join(factColumns, ", ")+" FROM user_facts")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load facts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.FactRow
	for rows.Next() {
		r, err := scanSQLiteFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate facts")
	}

	model.SortFacts(out)
	return out, nil
}

func (s *SQLiteStore) CurrentGeneration(ctx context.Context) (*Generation, error) {
	var g Generation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, row_count, materialized_at FROM materializations ORDER BY materialized_at DESC LIMIT 1`,
	).Scan(&g.ID, &g.Rows, &g.MaterializedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: current generation")
	}
	return &g, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteFact(row scannable) (*model.FactRow, error) {
	var (
		r       model.FactRow
		week    string
		regDate sql.NullString
		rates   [5]sql.NullFloat64
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
		return nil, eris.Wrap(err, "sqlite: scan fact")
	}

	r.ActivityWeek, err = time.Parse(model.DateLayout, week)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: fact %s has bad activity_week %q", r.UserID, week)
	}
	if regDate.Valid {
		if t, err := time.Parse(model.DateLayout, regDate.String); err == nil {
			r.RegistrationDate = &t
		}
	}
	r.AvgAestheticScore = nullFloat(rates[0])
	r.AvgLAIScore = nullFloat(rates[1])
	r.ExclusivityRate = nullFloat(rates[2])
	r.AcceptanceRate = nullFloat(rates[3])
	r.AvgVisitDaysMonthly = nullFloat(rates[4])
	return &r, nil
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
