package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS table_cache (
	url        TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS region_ids (
	code       TEXT PRIMARY KEY,
	ids        TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS shares (
	id         TEXT PRIMARY KEY,
	doc        BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_table_cache_expires_at ON table_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_shares_created_at ON shares(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetCachedTable(ctx context.Context, url string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT body FROM table_cache WHERE url = ? AND expires_at > datetime('now')`,
		url,
	)

	var body []byte
	err := row.Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached table")
	}
	return body, nil
}

func (s *SQLiteStore) SetCachedTable(ctx context.Context, url string, text []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO table_cache (url, body, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET body = excluded.body, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		url, text, now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached table")
}

func (s *SQLiteStore) DeleteExpiredTables(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM table_cache WHERE expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired tables")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) GetRegionIDs(ctx context.Context, code string) ([]int, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT ids FROM region_ids WHERE code = ?`,
		code,
	)

	var idsJSON string
	err := row.Scan(&idsJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get region ids")
	}

	var ids []int
	if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: unmarshal region ids")
	}
	return ids, true, nil
}

func (s *SQLiteStore) SetRegionIDs(ctx context.Context, code string, ids []int) error {
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal region ids")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO region_ids (code, ids, cached_at) VALUES (?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET ids = excluded.ids, cached_at = excluded.cached_at`,
		code, string(idsJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: set region ids")
}

func (s *SQLiteStore) SaveShare(ctx context.Context, id string, doc []byte) error {
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shares (id, doc, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`,
		id, doc, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save share %s", id)
}

func (s *SQLiteStore) GetShare(ctx context.Context, id string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM shares WHERE id = ?`, id)

	var doc []byte
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("share not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get share %s", id)
	}
	return doc, nil
}

func (s *SQLiteStore) ListShares(ctx context.Context, limit int) ([]ShareInfo, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at FROM shares ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list shares")
	}
	defer rows.Close()

	var shares []ShareInfo
	for rows.Next() {
		var info ShareInfo
		if err := rows.Scan(&info.ID, &info.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan share")
		}
		shares = append(shares, info)
	}
	return shares, eris.Wrap(rows.Err(), "sqlite: list shares iterate")
}
