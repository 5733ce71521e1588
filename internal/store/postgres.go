package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// so the Postgres store is unit-testable without a database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_cached_table": `SELECT body FROM table_cache WHERE url = $1 AND expires_at > now()`,
	"set_cached_table": `INSERT INTO table_cache (url, body, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO UPDATE SET body = EXCLUDED.body, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
	"get_region_ids": `SELECT ids FROM region_ids WHERE code = $1`,
	"set_region_ids": `INSERT INTO region_ids (code, ids, cached_at) VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET ids = EXCLUDED.ids, cached_at = EXCLUDED.cached_at`,
	"get_share": `SELECT doc FROM shares WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
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
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS table_cache (
	url        TEXT PRIMARY KEY,
	body       BYTEA NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS region_ids (
	code      TEXT PRIMARY KEY,
	ids       JSONB NOT NULL,
	cached_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS shares (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	doc        BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_table_cache_expires_at ON table_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_shares_created_at ON shares(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetCachedTable(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM table_cache WHERE url = $1 AND expires_at > now()`,
		url,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached table")
	}
	return body, nil
}

func (s *PostgresStore) SetCachedTable(ctx context.Context, url string, text []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO table_cache (url, body, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (url) DO UPDATE SET body = EXCLUDED.body, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		url, text, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached table")
}

func (s *PostgresStore) DeleteExpiredTables(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM table_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired tables")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetRegionIDs(ctx context.Context, code string) ([]int, bool, error) {
	var idsJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT ids FROM region_ids WHERE code = $1`, code).Scan(&idsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: get region ids")
	}

	var ids []int
	if err := json.Unmarshal(idsJSON, &ids); err != nil {
		return nil, false, eris.Wrap(err, "postgres: unmarshal region ids")
	}
	return ids, true, nil
}

func (s *PostgresStore) SetRegionIDs(ctx context.Context, code string, ids []int) error {
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal region ids")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO region_ids (code, ids, cached_at) VALUES ($1, $2, $3)
		 ON CONFLICT (code) DO UPDATE SET ids = EXCLUDED.ids, cached_at = EXCLUDED.cached_at`,
		code, idsJSON, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: set region ids")
}

func (s *PostgresStore) SaveShare(ctx context.Context, id string, doc []byte) error {
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO shares (id, doc, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		id, doc, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save share %s", id)
}

func (s *PostgresStore) GetShare(ctx context.Context, id string) ([]byte, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM shares WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("share not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get share %s", id)
	}
	return doc, nil
}

func (s *PostgresStore) ListShares(ctx context.Context, limit int) ([]ShareInfo, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at FROM shares ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list shares")
	}
	defer rows.Close()

	var shares []ShareInfo
	for rows.Next() {
		var info ShareInfo
		if err := rows.Scan(&info.ID, &info.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan share")
		}
		shares = append(shares, info)
	}
	return shares, eris.Wrap(rows.Err(), "postgres: list shares iterate")
}
