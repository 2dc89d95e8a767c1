package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lmi-check/internal/db"
	"github.com/sells-group/lmi-check/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"get_tract_income": `SELECT payload FROM tract_cache WHERE tract_id = $1 AND expires_at > now()`,
	"put_tract_income": `INSERT INTO tract_cache (tract_id, payload, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (tract_id) DO UPDATE SET payload = EXCLUDED.payload, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
	"insert_check": `INSERT INTO lmi_checks (id, query, tract_id, data_source, is_approved, result, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 8
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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
CREATE TABLE IF NOT EXISTS tract_cache (
	tract_id   TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tract_cache_expires_at ON tract_cache(expires_at);

CREATE TABLE IF NOT EXISTS lmi_checks (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	query       TEXT NOT NULL,
	tract_id    TEXT NOT NULL DEFAULT '',
	data_source TEXT NOT NULL,
	is_approved BOOLEAN NOT NULL DEFAULT false,
	result      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_lmi_checks_tract_id ON lmi_checks(tract_id);
CREATE INDEX IF NOT EXISTS idx_lmi_checks_created_at ON lmi_checks(created_at DESC);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetTractIncome(ctx context.Context, tractID string) (*model.TractIncomeRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM tract_cache WHERE tract_id = $1 AND expires_at > now()`,
		tractID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get tract income %s", tractID)
	}

	var rec model.TractIncomeRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal tract income %s", tractID)
	}
	return &rec, nil
}

func (s *PostgresStore) PutTractIncome(ctx context.Context, rec model.TractIncomeRecord, ttl time.Duration) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tract income")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tract_cache (tract_id, payload, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tract_id) DO UPDATE SET payload = EXCLUDED.payload, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		rec.TractID, payload, now, now.Add(ttlOrDefault(ttl)),
	)
	return eris.Wrapf(err, "postgres: put tract income %s", rec.TractID)
}

// ImportTractIncome bulk loads records through a COPY staging table.
func (s *PostgresStore) ImportTractIncome(ctx context.Context, recs []model.TractIncomeRecord, ttl time.Duration) (int, error) {
	now := time.Now().UTC()
	expires := now.Add(ttlOrDefault(ttl))

	rows := make([][]any, 0, len(recs))
	for i := range recs {
		if err := recs[i].Validate(); err != nil {
			return 0, eris.Wrapf(err, "postgres: import row %d", i+1)
		}
		payload, err := json.Marshal(recs[i])
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal tract income")
		}
		rows = append(rows, []any{recs[i].TractID, payload, now, expires})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "tract_cache",
		Columns:      []string{"tract_id", "payload", "cached_at", "expires_at"},
		ConflictKeys: []string{"tract_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import tract income")
	}
	return int(n), nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tract_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge expired tracts")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) TractStats(ctx context.Context) (*TractStats, error) {
	var st TractStats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FILTER (WHERE expires_at > now()), count(*) FILTER (WHERE expires_at <= now()) FROM tract_cache`,
	).Scan(&st.Live, &st.Expired)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: tract stats")
	}
	return &st, nil
}

func (s *PostgresStore) SaveCheck(ctx context.Context, rec *model.CheckRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal check result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO lmi_checks (id, query, tract_id, data_source, is_approved, result, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Query, rec.Result.TractID, string(rec.Result.DataSource), rec.Result.IsApproved, result, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save check")
}

func (s *PostgresStore) ListChecks(ctx context.Context, filter CheckFilter) ([]model.CheckRecord, error) {
	filter = normalizeFilter(filter)

	query := `SELECT id, query, result, created_at FROM lmi_checks`
	args := []any{}
	if filter.TractID != "" {
		query += ` WHERE tract_id = $1`
		args = append(args, filter.TractID)
	}
	query += ` ORDER BY created_at DESC`
	args = append(args, filter.Limit, filter.Offset)
	query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list checks")
	}
	defer rows.Close()

	var checks []model.CheckRecord
	for rows.Next() {
		var c model.CheckRecord
		var result []byte
		if err := rows.Scan(&c.ID, &c.Query, &result, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan check")
		}
		if err := json.Unmarshal(result, &c.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal check result")
		}
		checks = append(checks, c)
	}
	return checks, eris.Wrap(rows.Err(), "postgres: iterate checks")
}
