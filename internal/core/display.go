package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"photoframe/internal/storedata"
)

// displayBatchSize is how many lowest-lastViewedAt rows NextDisplayCandidates
// fetches before PickRandom breaks ties among them (§4.2, §4.5).
const displayBatchSize = 10

// DisplayScheduler implements §4.5: on each tick, picks the
// least-recently-shown cached photo, emits it, and records the view.
type DisplayScheduler struct {
	store        Store
	files        CacheReader
	sink         FrameSink
	clock        Clock
	log          Logger
	tickInterval time.Duration
}

// CacheReader is the read side of file-mode cache storage the Display
// Scheduler needs; internal/cachefs.Store satisfies it.
type CacheReader interface {
	Read(path string) ([]byte, error)
	Exists(path string) bool
}

// NewDisplayScheduler wires a DisplayScheduler. files may be nil when the
// deployment uses blob-mode storage exclusively.
func NewDisplayScheduler(store Store, files CacheReader, sink FrameSink, clock Clock, log Logger, tickInterval time.Duration) *DisplayScheduler {
	if log == nil {
		log = NewNopLogger()
	}
	return &DisplayScheduler{store: store, files: files, sink: sink, clock: clock, log: log, tickInterval: tickInterval}
}

// Tick runs one display cycle (§4.5 steps 1-5). It never blocks on a
// missing candidate — step 2 is a silent no-op.
func (d *DisplayScheduler) Tick(ctx context.Context) error {
	if err := d.maybeReshuffle(ctx); err != nil {
		d.log.Warn("reshuffle check failed", "error", err)
	}

	candidates, err := d.store.NextDisplayCandidates(ctx, displayBatchSize)
	if err != nil {
		return fmt.Errorf("fetching display candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	photo := storedata.PickRandom(candidates)

	bytes, err := d.loadBytes(ctx, photo)
	if err != nil {
		d.log.Warn("loading cached bytes failed", "photoId", photo.PhotoID, "error", err)
		return nil
	}
	if bytes == nil {
		// Missing file recovered in loadBytes; no frame this tick.
		return nil
	}

	d.sink.EmitFrame(FrameEvent{
		PhotoID:   photo.PhotoID,
		Bytes:     bytes,
		Filename:  photo.Filename,
		CreatedAt: int64PtrFromNull(photo.CreatedAt),
		Width:     intPtrFromNull(photo.Width),
		Height:    intPtrFromNull(photo.Height),
	})

	go func() {
		if err := d.store.UpdateLastViewedAt(context.Background(), photo.PhotoID, d.clock.Now().UnixMilli()); err != nil {
			d.log.Error("recording last viewed at failed", "photoId", photo.PhotoID, "error", err)
		}
	}()

	return nil
}

// loadBytes returns nil, nil when the photo is file-mode but the backing
// file is gone — the cache fields are cleared and the tick skips emitting
// (§4.5 step 3).
func (d *DisplayScheduler) loadBytes(ctx context.Context, photo *storedata.Photo) ([]byte, error) {
	if photo.IsBlobMode() {
		return photo.CachedData, nil
	}

	if !photo.CachedPath.Valid || d.files == nil {
		return nil, fmt.Errorf("photo %s has no usable cache resource", photo.PhotoID)
	}
	if !d.files.Exists(photo.CachedPath.String) {
		if err := d.store.ClearCacheFields(ctx, photo.PhotoID); err != nil {
			return nil, fmt.Errorf("clearing cache fields after missing file: %w", err)
		}
		return nil, nil
	}
	return d.files.Read(photo.CachedPath.String)
}

// maybeReshuffle implements the cycle property of §4.5: once no cached
// candidate has gone unshown for at least half a display interval, zero
// every lastViewedAt so the unseen set refills.
func (d *DisplayScheduler) maybeReshuffle(ctx context.Context) error {
	threshold := d.clock.Now().Add(-d.tickInterval / 2).UnixMilli()
	stale, err := d.store.CountStaleCandidates(ctx, threshold)
	if err != nil {
		return fmt.Errorf("counting stale candidates: %w", err)
	}
	if stale > 0 {
		return nil
	}
	if err := d.store.ResetAllLastViewedAt(ctx); err != nil {
		return fmt.Errorf("resetting last viewed at: %w", err)
	}
	d.log.Info("display scheduler reshuffled")
	return nil
}

func int64PtrFromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intPtrFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
