// Package store persists the source manifest: which remote artifacts were
// fetched, where they landed and the validators needed to skip unchanged
// re-downloads.
package store

import (
	"context"
	"time"
)

// FetchRecord describes one downloaded source artifact.
type FetchRecord struct {
	ID        string    `json:"id"`
	Dataset   string    `json:"dataset"`
	Role      string    `json:"role"`
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	ETag      string    `json:"etag,omitempty"`
	Bytes     int64     `json:"bytes"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store defines manifest persistence. Records are keyed by URL.
type Store interface {
	// RecordFetch inserts or replaces the record for rec.URL.
	RecordFetch(ctx context.Context, rec FetchRecord) error
	// GetFetch returns the record for url, or nil when none exists.
	GetFetch(ctx context.Context, url string) (*FetchRecord, error)
	// ListFetches returns all records, newest first.
	ListFetches(ctx context.Context) ([]FetchRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}
