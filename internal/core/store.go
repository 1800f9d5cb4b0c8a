package core

import (
	"context"

	"photoframe/internal/storedata"
)

// Store is the Metadata Store contract (§4.2): one writer serialized through
// the store itself, many concurrent readers, corruption recovery on open.
type Store interface {
	// GetPhoto returns a single photo row, or nil if it doesn't exist.
	GetPhoto(ctx context.Context, photoID string) (*storedata.Photo, error)

	// UpsertPhoto inserts or refreshes a single photo's scan-observable
	// fields, leaving cache/display state untouched.
	UpsertPhoto(ctx context.Context, p storedata.UpsertPhotoParams) error

	// BatchUpsertPhotos upserts every record of one scan page inside a
	// single transaction (§4.2 concurrency discipline).
	BatchUpsertPhotos(ctx context.Context, ps []storedata.UpsertPhotoParams) error

	// TombstoneStalePhotos marks every photo of providerID last seen before
	// scanStartedAt as tombstoned, in one transaction. Returns the count
	// affected.
	TombstoneStalePhotos(ctx context.Context, providerID string, scanStartedAt int64) (int64, error)

	// TombstonePhoto marks a single photo tombstoned (incremental deletes,
	// validation failures, not-found downloads).
	TombstonePhoto(ctx context.Context, photoID string) error

	// NextDisplayCandidates returns up to limit cached, non-tombstoned
	// rows ordered lastViewedAt ASC NULLS FIRST (§4.2).
	NextDisplayCandidates(ctx context.Context, limit int) ([]*storedata.Photo, error)

	// PrefetchCandidates returns up to limit uncached rows, oldest-unseen-
	// first (§4.2).
	PrefetchCandidates(ctx context.Context, limit int) ([]*storedata.Photo, error)

	// EvictionCandidates returns up to limit cached rows, lastViewedAt ASC
	// NULLS FIRST (§4.2).
	EvictionCandidates(ctx context.Context, limit int) ([]*storedata.Photo, error)

	// SumCachedBytes returns total bytes currently cached.
	SumCachedBytes(ctx context.Context) (int64, error)

	// SetFileCacheFields records a file-mode cache resource.
	SetFileCacheFields(ctx context.Context, photoID, cachedPath string, sizeBytes, cachedAt int64) error

	// SetBlobCacheFields records a blob-mode cache resource.
	SetBlobCacheFields(ctx context.Context, photoID string, data []byte, mime string, cachedAt int64) error

	// ClearCacheFields atomically nulls every cache column (eviction, or
	// recovery from a missing file on the display path).
	ClearCacheFields(ctx context.Context, photoID string) error

	// UpdateLastViewedAt records a display emission.
	UpdateLastViewedAt(ctx context.Context, photoID string, viewedAt int64) error

	// ResetAllLastViewedAt implements the Display Scheduler reshuffle.
	ResetAllLastViewedAt(ctx context.Context) error

	// CountStaleCandidates counts cached rows not viewed since threshold,
	// used to decide whether to reshuffle.
	CountStaleCandidates(ctx context.Context, threshold int64) (int64, error)

	// GetSetting/SetSetting back the SyncCursor and needsFullRescan flag.
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	// Close flushes and closes the underlying connection.
	Close() error
}
