// Package storedata holds the row types and hand-written query layer for
// the Metadata Store, in the shape sqlc would generate: a DBTX interface
// any of *sql.DB/*sql.Tx satisfy, a Queries struct wrapping one, and one
// method per query shape. The teacher (bt-go) generates this layer with
// sqlc from internal/database/migrations/files/*.sql; this package is
// written by hand against the same migration files since no sqlc toolchain
// runs as part of building this repo.
package storedata

import "database/sql"

// Photo is the row type for the photo table (§3).
type Photo struct {
	PhotoID          string
	ProviderID       string
	ParentFolderID   string
	Filename         string
	CreatedAt        sql.NullInt64
	Width            sql.NullInt64
	Height           sql.NullInt64
	FirstSeenAt      int64
	LastSeenInScanAt int64
	Tombstoned       bool
	LastViewedAt     sql.NullInt64

	CachedPath      sql.NullString
	CachedData      []byte
	CachedMime      sql.NullString
	CachedSizeBytes sql.NullInt64
	CachedAt        sql.NullInt64
}

// IsCached reports whether the row carries a physical cache resource,
// per the three-shape cache-state invariant in §3.
func (p *Photo) IsCached() bool { return p.CachedSizeBytes.Valid }

// IsBlobMode reports whether the cached resource (if any) lives inline.
func (p *Photo) IsBlobMode() bool { return len(p.CachedData) > 0 }

// Setting is the row type for the setting key/value table (§3).
type Setting struct {
	Key   string
	Value string
}
