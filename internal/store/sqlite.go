package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lmi-check/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
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
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tract_cache (
	tract_id   TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tract_cache_expires_at ON tract_cache(expires_at);

CREATE TABLE IF NOT EXISTS lmi_checks (
	id          TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	tract_id    TEXT NOT NULL DEFAULT '',
	data_source TEXT NOT NULL,
	is_approved INTEGER NOT NULL DEFAULT 0,
	result      TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lmi_checks_tract_id ON lmi_checks(tract_id);
CREATE INDEX IF NOT EXISTS idx_lmi_checks_created_at ON lmi_checks(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetTractIncome(ctx context.Context, tractID string) (*model.TractIncomeRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM tract_cache WHERE tract_id = ? AND expires_at > ?`,
		tractID, s.now().UTC(),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get tract income %s", tractID)
	}

	var rec model.TractIncomeRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal tract income %s", tractID)
	}
	return &rec, nil
}

const sqliteUpsertTract = `INSERT INTO tract_cache (tract_id, payload, cached_at, expires_at) VALUES (?, ?, ?, ?)
	ON CONFLICT (tract_id) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at, expires_at = excluded.expires_at`

func (s *SQLiteStore) PutTractIncome(ctx context.Context, rec model.TractIncomeRecord, ttl time.Duration) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tract income")
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, sqliteUpsertTract,
		rec.TractID, string(payload), now, now.Add(ttlOrDefault(ttl)),
	)
	return eris.Wrapf(err, "sqlite: put tract income %s", rec.TractID)
}

// ImportTractIncome upserts every record in a single transaction.
func (s *SQLiteStore) ImportTractIncome(ctx context.Context, recs []model.TractIncomeRecord, ttl time.Duration) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	now := s.now().UTC()
	expires := now.Add(ttlOrDefault(ttl))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertTract)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range recs {
		if err := recs[i].Validate(); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import row %d", i+1)
		}
		payload, err := json.Marshal(recs[i])
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal tract income")
		}
		if _, err := stmt.ExecContext(ctx, recs[i].TractID, string(payload), now, expires); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import tract %s", recs[i].TractID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return len(recs), nil
}

func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tract_cache WHERE expires_at <= ?`, s.now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge expired tracts")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) TractStats(ctx context.Context) (*TractStats, error) {
	now := s.now().UTC()
	var st TractStats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)
		 FROM tract_cache`,
		now, now,
	).Scan(&st.Live, &st.Expired)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: tract stats")
	}
	return &st, nil
}

func (s *SQLiteStore) SaveCheck(ctx context.Context, rec *model.CheckRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal check result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lmi_checks (id, query, tract_id, data_source, is_approved, result, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Query, rec.Result.TractID, string(rec.Result.DataSource), rec.Result.IsApproved, string(result), rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: save check")
}

func (s *SQLiteStore) ListChecks(ctx context.Context, filter CheckFilter) ([]model.CheckRecord, error) {
	filter = normalizeFilter(filter)

	query := `SELECT id, query, result, created_at FROM lmi_checks`
	var args []any
	if filter.TractID != "" {
		query += ` WHERE tract_id = ?`
		args = append(args, filter.TractID)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list checks")
	}
	defer rows.Close() //nolint:errcheck

	var checks []model.CheckRecord
	for rows.Next() {
		var c model.CheckRecord
		var result string
		if err := rows.Scan(&c.ID, &c.Query, &result, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan check")
		}
		if err := json.Unmarshal([]byte(result), &c.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal check result")
		}
		checks = append(checks, c)
	}
	return checks, eris.Wrap(rows.Err(), "sqlite: iterate checks")
}
