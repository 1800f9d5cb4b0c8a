// Package store implements the Metadata Store (§4.2) on SQLite, the way
// the teacher's internal/database implements bt.Database: a thin wrapper
// around a hand-written sqlc-style query layer (internal/storedata), with
// migrations applied through golang-migrate and the file opened with the
// same PRAGMA discipline as the teacher's OpenConnection.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"photoframe/internal/core"
	"photoframe/internal/storedata"
	"photoframe/internal/store/migrations"

	_ "github.com/mattn/go-sqlite3"
)

// integrityCheckTimeout bounds the startup integrity check (§4.2, §5).
const integrityCheckTimeout = 5 * time.Second

// SQLiteStore implements core.Store on top of a SQLite file (or ":memory:").
// Writes are serialized through writeMu; reads run against the pool
// unguarded, matching the "one writer, many readers" discipline of §4.2 —
// SQLite's own file locking backs this up, writeMu just avoids contending
// on SQLITE_BUSY under normal operation.
type SQLiteStore struct {
	db      *sql.DB
	queries *storedata.Queries
	path    string
	writeMu sync.Mutex
}

// Open opens (or creates) the Metadata Store at path, running the
// corruption-recovery procedure of §4.2 step 1-3 before returning.
// path may be ":memory:" for tests.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := openAndMigrate(path)
	if err != nil {
		return rebuildOrFail(ctx, path, err)
	}

	if err := checkIntegrity(ctx, db); err != nil {
		db.Close()
		return rebuildOrFail(ctx, path, err)
	}

	return &SQLiteStore{db: db, queries: storedata.New(db), path: path}, nil
}

// rebuildOrFail runs the corruption-recovery path of §4.2 in response to
// cause, which may be a failed open/migrate or a failed integrity check —
// either way the file is unusable as-is. If recovery itself fails, the
// store is unrecoverable and that's surfaced as a StoreIntegrityError so
// callers (and the CLI's exit-code mapping) can tell it apart from a
// configuration mistake.
func rebuildOrFail(ctx context.Context, path string, cause error) (*SQLiteStore, error) {
	rebuilt, rerr := rebuildEmpty(ctx, path)
	if rerr != nil {
		return nil, &core.StoreIntegrityError{
			Err: fmt.Errorf("rebuilding corrupted store: %w (original error: %v)", rerr, cause),
		}
	}
	return rebuilt, nil
}

// openAndMigrate opens a connection with the standard PRAGMAs and applies
// all pending schema migrations.
func openAndMigrate(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	return db, nil
}

// checkIntegrity runs SQLite's own integrity_check with a 5s ceiling.
func checkIntegrity(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, integrityCheckTimeout)
	defer cancel()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return &core.StoreIntegrityError{Err: err}
	}
	if result != "ok" {
		return &core.StoreIntegrityError{Err: fmt.Errorf("integrity_check reported: %s", result)}
	}
	return nil
}

// rebuildEmpty implements §4.2's corruption-recovery branch: close, delete
// the backing file(s), reopen empty, recreate schema, and signal
// sync.needsFullRescan. Deliberately small — no backup, no salvage.
func rebuildEmpty(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
			os.Remove(path + suffix)
		}
	}

	db, err := openAndMigrate(path)
	if err != nil {
		return nil, fmt.Errorf("reopening after rebuild: %w", err)
	}

	s := &SQLiteStore{db: db, queries: storedata.New(db), path: path}
	if err := s.SetSetting(ctx, "sync.needsFullRescan", "true"); err != nil {
		db.Close()
		return nil, fmt.Errorf("signaling full rescan: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) GetPhoto(ctx context.Context, photoID string) (*storedata.Photo, error) {
	return s.queries.GetPhotoByID(ctx, photoID)
}

func (s *SQLiteStore) UpsertPhoto(ctx context.Context, p storedata.UpsertPhotoParams) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.queries.UpsertPhoto(ctx, p)
}

// BatchUpsertPhotos groups a scan page's upserts in a single transaction,
// per §4.2's "no long-running transaction may span a Provider call" —
// by the time this is called the page has already been fully read from
// the Provider into ps.
func (s *SQLiteStore) BatchUpsertPhotos(ctx context.Context, ps []storedata.UpsertPhotoParams) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch upsert transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)
	for _, p := range ps {
		if err := qtx.UpsertPhoto(ctx, p); err != nil {
			return fmt.Errorf("batch upsert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TombstoneStalePhotos(ctx context.Context, providerID string, scanStartedAt int64) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.queries.TombstoneStalePhotos(ctx, providerID, scanStartedAt)
}

func (s *SQLiteStore) TombstonePhoto(ctx context.Context, photoID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.queries.TombstonePhotoByID(ctx, photoID)
}

func (s *SQLiteStore) NextDisplayCandidates(ctx context.Context, limit int) ([]*storedata.Photo, error) {
	return s.queries.NextDisplayCandidates(ctx, limit)
}

func (s *SQLiteStore) PrefetchCandidates(ctx context.Context, limit int) ([]*storedata.Photo, error) {
	return s.queries.PrefetchCandidates(ctx, limit)
}

func (s *SQLiteStore) EvictionCandidates(ctx context.Context, limit int) ([]*storedata.Photo, error) {
	return s.queries.EvictionCandidates(ctx, limit)
}

func (s *SQLiteStore) SumCachedBytes(ctx context.Context) (int64, error) {
	return s.queries.SumCachedBytes(ctx)
}

func (s *SQLiteStore) SetFileCacheFields(ctx context.Context, photoID, cachedPath string, sizeBytes, cachedAt int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.queries.SetFileCacheFields(ctx, photoID, cachedPath, sizeBytes, cachedAt)
}

func (s *SQLiteStore) SetBlobCacheFields(ctx context.Context, photoID string, data []byte, mime string, cachedAt int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.queries.SetBlobCacheFields(ctx, photoID, data, mime, cachedAt)
}

func (s *SQLiteStore) ClearCacheFields(ctx context.Context, photoID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.queries.ClearCacheFields(ctx, photoID)
}

func (s *SQLiteStore) UpdateLastViewedAt(ctx context.Context, photoID string, viewedAt int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.queries.UpdateLastViewedAt(ctx, photoID, viewedAt)
}

func (s *SQLiteStore) ResetAllLastViewedAt(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.queries.ResetAllLastViewedAt(ctx)
}

func (s *SQLiteStore) CountStaleCandidates(ctx context.Context, threshold int64) (int64, error) {
	return s.queries.CountStaleCandidates(ctx, threshold)
}

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return s.queries.GetSetting(ctx, key)
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.queries.SetSetting(ctx, key, value)
}

// BackupTo creates a complete copy of the store at destPath using
// VACUUM INTO, the same mechanism the teacher's BackupTo uses.
func (s *SQLiteStore) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up metadata store: %w", err)
	}
	return nil
}

// Path returns the store's file path (or ":memory:").
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ core.Store = (*SQLiteStore)(nil)
