package store

import (
	"context"
	"database/sql"
	"errors"
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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS source_fetches (
	id         TEXT PRIMARY KEY,
	dataset    TEXT NOT NULL,
	role       TEXT NOT NULL,
	url        TEXT NOT NULL UNIQUE,
	path       TEXT NOT NULL,
	etag       TEXT NOT NULL DEFAULT '',
	bytes      INTEGER NOT NULL DEFAULT 0,
	fetched_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_source_fetches_dataset ON source_fetches(dataset);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordFetch(ctx context.Context, rec FetchRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_fetches (id, dataset, role, url, path, etag, bytes, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		   dataset = excluded.dataset, role = excluded.role, path = excluded.path,
		   etag = excluded.etag, bytes = excluded.bytes, fetched_at = excluded.fetched_at`,
		rec.ID, rec.Dataset, rec.Role, rec.URL, rec.Path, rec.ETag, rec.Bytes, rec.FetchedAt,
	)
	return eris.Wrapf(err, "sqlite: record fetch %s", rec.URL)
}

func (s *SQLiteStore) GetFetch(ctx context.Context, url string) (*FetchRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, dataset, role, url, path, etag, bytes, fetched_at FROM source_fetches WHERE url = ?`, url)

	rec, err := scanFetch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get fetch %s", url)
	}
	return rec, nil
}

func (s *SQLiteStore) ListFetches(ctx context.Context) ([]FetchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dataset, role, url, path, etag, bytes, fetched_at FROM source_fetches ORDER BY fetched_at DESC, url`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fetches")
	}
	defer rows.Close() //nolint:errcheck

	var out []FetchRecord
	for rows.Next() {
		rec, err := scanFetch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fetch")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate fetches")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFetch(row scannable) (*FetchRecord, error) {
	var rec FetchRecord
	if err := row.Scan(&rec.ID, &rec.Dataset, &rec.Role, &rec.URL, &rec.Path, &rec.ETag, &rec.Bytes, &rec.FetchedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
