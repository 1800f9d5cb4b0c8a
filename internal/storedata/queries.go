package storedata

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, the same seam sqlc
// generates so a Queries value can run against either.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries wraps a DBTX with one method per query shape the Metadata Store
// needs (§4.2).
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries { return &Queries{db: db} }

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries { return &Queries{db: tx} }

const photoColumns = `photo_id, provider_id, parent_folder_id, filename, created_at, width, height,
	first_seen_at, last_seen_in_scan_at, tombstoned, last_viewed_at,
	cached_path, cached_data, cached_mime, cached_size_bytes, cached_at`

func scanPhoto(row interface{ Scan(dest ...any) error }) (*Photo, error) {
	var p Photo
	err := row.Scan(
		&p.PhotoID, &p.ProviderID, &p.ParentFolderID, &p.Filename, &p.CreatedAt, &p.Width, &p.Height,
		&p.FirstSeenAt, &p.LastSeenInScanAt, &p.Tombstoned, &p.LastViewedAt,
		&p.CachedPath, &p.CachedData, &p.CachedMime, &p.CachedSizeBytes, &p.CachedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPhotoByID returns a single photo, or nil if it doesn't exist.
func (q *Queries) GetPhotoByID(ctx context.Context, photoID string) (*Photo, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photo WHERE photo_id = ?`, photoID)
	p, err := scanPhoto(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get photo by id: %w", err)
	}
	return p, nil
}

// UpsertPhotoParams mirrors what a Provider reports for a freshly scanned
// or updated photo, plus the scan timestamp that drives tombstoning.
type UpsertPhotoParams struct {
	PhotoID          string
	ProviderID       string
	ParentFolderID   string
	Filename         string
	CreatedAt        sql.NullInt64
	Width            sql.NullInt64
	Height           sql.NullInt64
	FirstSeenAt      int64
	LastSeenInScanAt int64
}

// UpsertPhoto inserts a new photo row, or — if the photoId already exists —
// refreshes its scan-observable fields and lastSeenInScanAt, leaving cache
// and display state untouched (§3 lifecycle).
func (q *Queries) UpsertPhoto(ctx context.Context, p UpsertPhotoParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO photo (photo_id, provider_id, parent_folder_id, filename, created_at, width, height,
			first_seen_at, last_seen_in_scan_at, tombstoned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(photo_id) DO UPDATE SET
			parent_folder_id = excluded.parent_folder_id,
			filename = excluded.filename,
			created_at = excluded.created_at,
			width = excluded.width,
			height = excluded.height,
			last_seen_in_scan_at = excluded.last_seen_in_scan_at,
			tombstoned = 0
	`, p.PhotoID, p.ProviderID, p.ParentFolderID, p.Filename, p.CreatedAt, p.Width, p.Height,
		p.FirstSeenAt, p.LastSeenInScanAt)
	if err != nil {
		return fmt.Errorf("upsert photo: %w", err)
	}
	return nil
}

// TombstoneStalePhotos marks every non-tombstoned photo of the given
// provider whose lastSeenInScanAt predates scanStartedAt — the full-scan
// deletion-detection rule in §4.4.
func (q *Queries) TombstoneStalePhotos(ctx context.Context, providerID string, scanStartedAt int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE photo SET tombstoned = 1
		WHERE provider_id = ? AND tombstoned = 0 AND last_seen_in_scan_at < ?
	`, providerID, scanStartedAt)
	if err != nil {
		return 0, fmt.Errorf("tombstone stale photos: %w", err)
	}
	return res.RowsAffected()
}

// TombstonePhotoByID marks a single photo tombstoned, for incremental
// Deleted change events and for validation-failed cache downloads.
func (q *Queries) TombstonePhotoByID(ctx context.Context, photoID string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE photo SET tombstoned = 1 WHERE photo_id = ?`, photoID)
	if err != nil {
		return fmt.Errorf("tombstone photo: %w", err)
	}
	return nil
}

// NextDisplayCandidates returns up to limit rows eligible for display,
// ordered lastViewedAt ASC NULLS FIRST (unseen first); rows sharing the
// same lastViewedAt come back in no particular order. Callers pick one of
// the lowest group at random (PickRandom) to get the random tie-breaking
// without requiring a non-portable ORDER BY RANDOM() tiebreak in SQL.
func (q *Queries) NextDisplayCandidates(ctx context.Context, limit int) ([]*Photo, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+photoColumns+` FROM photo
		WHERE tombstoned = 0 AND cached_size_bytes IS NOT NULL
		ORDER BY (last_viewed_at IS NOT NULL), last_viewed_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("next display candidates: %w", err)
	}
	defer rows.Close()
	return scanPhotos(rows)
}

// PickRandom returns a random element among the rows sharing the lowest
// lastViewedAt in photos (NULL sorts lowest, matching the query's
// NULLS FIRST order) — the random tie-break is only among that group, not
// across the whole batch, so an already-viewed row is never picked ahead
// of an unseen one.
func PickRandom(photos []*Photo) *Photo {
	if len(photos) == 0 {
		return nil
	}

	tieGroup := photos[:1]
	for _, p := range photos[1:] {
		switch {
		case lastViewedBefore(p, tieGroup[0]):
			tieGroup = []*Photo{p}
		case lastViewedEqual(p, tieGroup[0]):
			tieGroup = append(tieGroup, p)
		}
	}

	return tieGroup[rand.Intn(len(tieGroup))]
}

// lastViewedBefore reports whether a's lastViewedAt sorts strictly before
// b's under NULLS FIRST ordering.
func lastViewedBefore(a, b *Photo) bool {
	if !a.LastViewedAt.Valid {
		return b.LastViewedAt.Valid
	}
	if !b.LastViewedAt.Valid {
		return false
	}
	return a.LastViewedAt.Int64 < b.LastViewedAt.Int64
}

func lastViewedEqual(a, b *Photo) bool {
	if a.LastViewedAt.Valid != b.LastViewedAt.Valid {
		return false
	}
	return !a.LastViewedAt.Valid || a.LastViewedAt.Int64 == b.LastViewedAt.Int64
}

// PrefetchCandidates returns up to limit uncached, non-tombstoned rows,
// oldest-unseen-first (§4.2).
func (q *Queries) PrefetchCandidates(ctx context.Context, limit int) ([]*Photo, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+photoColumns+` FROM photo
		WHERE tombstoned = 0 AND cached_size_bytes IS NULL
		ORDER BY first_seen_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("prefetch candidates: %w", err)
	}
	defer rows.Close()
	return scanPhotos(rows)
}

// EvictionCandidates returns up to limit cached rows, lastViewedAt ASC
// NULLS FIRST (evict never-shown-since-cache rows before recently-shown
// ones — oldest by view time) (§4.2, §4.3.2).
func (q *Queries) EvictionCandidates(ctx context.Context, limit int) ([]*Photo, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+photoColumns+` FROM photo
		WHERE cached_size_bytes IS NOT NULL
		ORDER BY (last_viewed_at IS NOT NULL), last_viewed_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("eviction candidates: %w", err)
	}
	defer rows.Close()
	return scanPhotos(rows)
}

func scanPhotos(rows *sql.Rows) ([]*Photo, error) {
	var out []*Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photo rows: %w", err)
	}
	return out, nil
}

// SumCachedBytes returns the total bytes currently occupied by cached
// photos (§4.2, §4.3.2 step 1).
func (q *Queries) SumCachedBytes(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := q.db.QueryRowContext(ctx, `SELECT SUM(cached_size_bytes) FROM photo WHERE cached_size_bytes IS NOT NULL`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum cached bytes: %w", err)
	}
	return total.Int64, nil
}

// SetFileCacheFields records a file-mode cache resource on a photo.
func (q *Queries) SetFileCacheFields(ctx context.Context, photoID, cachedPath string, sizeBytes, cachedAt int64) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE photo SET cached_path = ?, cached_data = NULL, cached_mime = NULL,
			cached_size_bytes = ?, cached_at = ?
		WHERE photo_id = ?
	`, cachedPath, sizeBytes, cachedAt, photoID)
	if err != nil {
		return fmt.Errorf("set file cache fields: %w", err)
	}
	return nil
}

// SetBlobCacheFields records a blob-mode cache resource on a photo.
func (q *Queries) SetBlobCacheFields(ctx context.Context, photoID string, data []byte, mime string, cachedAt int64) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE photo SET cached_path = NULL, cached_data = ?, cached_mime = ?,
			cached_size_bytes = ?, cached_at = ?
		WHERE photo_id = ?
	`, data, mime, int64(len(data)), cachedAt, photoID)
	if err != nil {
		return fmt.Errorf("set blob cache fields: %w", err)
	}
	return nil
}

// ClearCacheFields nulls out all cache columns for a photo, for eviction
// and for a missing-file recovery on the display path (§4.3.2 step 2,
// §4.5 step 3).
func (q *Queries) ClearCacheFields(ctx context.Context, photoID string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE photo SET cached_path = NULL, cached_data = NULL, cached_mime = NULL,
			cached_size_bytes = NULL, cached_at = NULL
		WHERE photo_id = ?
	`, photoID)
	if err != nil {
		return fmt.Errorf("clear cache fields: %w", err)
	}
	return nil
}

// UpdateLastViewedAt records that a photo was just shown (§4.5 step 5).
func (q *Queries) UpdateLastViewedAt(ctx context.Context, photoID string, viewedAt int64) error {
	_, err := q.db.ExecContext(ctx, `UPDATE photo SET last_viewed_at = ? WHERE photo_id = ?`, viewedAt, photoID)
	if err != nil {
		return fmt.Errorf("update last viewed at: %w", err)
	}
	return nil
}

// ResetAllLastViewedAt zeroes lastViewedAt on every cached, non-tombstoned
// row — the reshuffle operation in §4.5.
func (q *Queries) ResetAllLastViewedAt(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE photo SET last_viewed_at = NULL
		WHERE tombstoned = 0 AND cached_size_bytes IS NOT NULL
	`)
	if err != nil {
		return fmt.Errorf("reset last viewed at: %w", err)
	}
	return nil
}

// CountStaleCandidates counts cached, non-tombstoned rows whose
// lastViewedAt is NULL or older than the given threshold. The Display
// Scheduler reshuffles once this hits zero (§4.5).
func (q *Queries) CountStaleCandidates(ctx context.Context, threshold int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM photo
		WHERE tombstoned = 0 AND cached_size_bytes IS NOT NULL
		  AND (last_viewed_at IS NULL OR last_viewed_at < ?)
	`, threshold).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale candidates: %w", err)
	}
	return n, nil
}

// GetSetting returns a setting's value and whether it exists.
func (q *Queries) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := q.db.QueryRowContext(ctx, `SELECT value FROM setting WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	return value, true, nil
}

// SetSetting upserts a setting's value.
func (q *Queries) SetSetting(ctx context.Context, key, value string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO setting (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
