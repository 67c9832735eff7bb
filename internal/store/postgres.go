package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/areal/internal/db"
)

// PostgresStore implements Store on a shared pgx pool, for deployments that
// already read boundaries from PostGIS.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps an open pool. The pool is owned by the caller.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS source_fetches (
	id         UUID PRIMARY KEY,
	dataset    TEXT NOT NULL,
	role       TEXT NOT NULL,
	url        TEXT NOT NULL UNIQUE,
	path       TEXT NOT NULL,
	etag       TEXT NOT NULL DEFAULT '',
	bytes      BIGINT NOT NULL DEFAULT 0,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_source_fetches_dataset ON source_fetches(dataset);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) RecordFetch(ctx context.Context, rec FetchRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_fetches (id, dataset, role, url, path, etag, bytes, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (url) DO UPDATE SET
		   dataset = EXCLUDED.dataset, role = EXCLUDED.role, path = EXCLUDED.path,
		   etag = EXCLUDED.etag, bytes = EXCLUDED.bytes, fetched_at = EXCLUDED.fetched_at`,
		rec.ID, rec.Dataset, rec.Role, rec.URL, rec.Path, rec.ETag, rec.Bytes, rec.FetchedAt,
	)
	return eris.Wrapf(err, "postgres: record fetch %s", rec.URL)
}

func (s *PostgresStore) GetFetch(ctx context.Context, url string) (*FetchRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id::text, dataset, role, url, path, etag, bytes, fetched_at FROM source_fetches WHERE url = $1`, url)

	rec, err := scanFetch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get fetch %s", url)
	}
	return rec, nil
}

func (s *PostgresStore) ListFetches(ctx context.Context) ([]FetchRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, dataset, role, url, path, etag, bytes, fetched_at FROM source_fetches ORDER BY fetched_at DESC, url`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fetches")
	}
	defer rows.Close()

	var out []FetchRecord
	for rows.Next() {
		rec, err := scanFetch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan fetch")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate fetches")
}
