package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"photoframe/internal/storedata"
)

// TickState is the Cache Engine's state machine (§4.3.1).
type TickState int

const (
	StateIdle TickState = iota
	StateTicking
	StateCooling
	StateStopped
)

func (s TickState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTicking:
		return "ticking"
	case StateCooling:
		return "cooling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	evictionHeadroomBytes = 10 << 20 // 10 MiB
	maxRawDownloadBytes   = 50 << 20 // 50 MiB
	coolingThreshold      = 3
	coolingDuration       = 60 * time.Second
	downloadTimeout       = 30 * time.Second
)

// downloadOutcome classifies a single download per §4.3.2 step 6.
type downloadOutcome int

const (
	outcomeSuccess downloadOutcome = iota
	outcomeNetworkFail
	outcomeValidationFail
)

// CacheEngineConfig carries the tunables §4.3 calls out by name.
type CacheEngineConfig struct {
	PrefetchBatch  int
	MaxCacheBytes  int64
	TargetWidth    int
	TargetHeight   int
	JPEGQuality    int
	UseBlobStorage bool
}

// CacheWriter is the subset of the file-mode storage surface the Cache
// Engine needs; internal/cachefs.Store satisfies it.
type CacheWriter interface {
	Write(photoID, ext string, data []byte) (string, error)
	Remove(path string) error
}

// CacheEngine implements the tick-driven prefetch/eviction loop of §4.3.
type CacheEngine struct {
	store      Store
	provider   Provider
	files      CacheWriter
	normalize  Normalizer
	clock      Clock
	log        Logger
	cfg        CacheEngineConfig

	mu                     sync.Mutex
	state                  TickState
	consecutiveFailedTicks int
	coolingUntil           time.Time

	sf singleflight.Group
}

// Normalizer is the image-normalization seam the Cache Engine depends on.
// internal/imaging's normalizers take imaging.Options rather than
// NormalizeOptions; internal/app adapts them to this interface.
type Normalizer interface {
	Normalize(raw []byte, opts NormalizeOptions) ([]byte, error)
}

// NormalizeOptions mirrors imaging.Options without creating an import
// cycle between internal/core and internal/imaging.
type NormalizeOptions struct {
	TargetWidth  int
	TargetHeight int
	Quality      int
}

// NewCacheEngine wires a CacheEngine. files may be nil when
// cfg.UseBlobStorage is true.
func NewCacheEngine(store Store, provider Provider, files CacheWriter, normalize Normalizer, clock Clock, log Logger, cfg CacheEngineConfig) *CacheEngine {
	if log == nil {
		log = NewNopLogger()
	}
	return &CacheEngine{
		store:     store,
		provider:  provider,
		files:     files,
		normalize: normalize,
		clock:     clock,
		log:       log,
		cfg:       cfg,
		state:     StateIdle,
	}
}

// State returns the engine's current tick state.
func (e *CacheEngine) State() TickState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Tick runs one cache tick. Callers (the Runtime's periodic timer) must
// not call Tick concurrently with itself; Tick additionally guards against
// overlap with singleflight so a slow tick can't be double-fired by a
// jittery scheduler (§4.3.1: "a tick that fires while ticking must be
// dropped").
func (e *CacheEngine) Tick(ctx context.Context) error {
	_, err, _ := e.sf.Do("tick", func() (any, error) {
		return nil, e.runTick(ctx)
	})
	return err
}

func (e *CacheEngine) runTick(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil
	}
	if e.state == StateCooling {
		if e.clock.Now().Before(e.coolingUntil) {
			e.mu.Unlock()
			return nil
		}
		e.state = StateIdle
		e.consecutiveFailedTicks = 0
	}
	e.state = StateTicking
	e.mu.Unlock()

	failed := e.tickBody(ctx)

	e.mu.Lock()
	if failed {
		e.consecutiveFailedTicks++
	} else {
		e.consecutiveFailedTicks = 0
	}
	if e.consecutiveFailedTicks >= coolingThreshold {
		e.state = StateCooling
		e.coolingUntil = e.clock.Now().Add(coolingDuration)
		e.log.Warn("cache engine entering cooling state", "consecutiveFailedTicks", e.consecutiveFailedTicks)
	} else if e.state != StateStopped {
		e.state = StateIdle
	}
	e.mu.Unlock()

	return nil
}

// tickBody runs the contract of §4.3.2 and reports whether the tick
// attempted at least one download and every attempt failed.
func (e *CacheEngine) tickBody(ctx context.Context) (allFailed bool) {
	if err := e.evict(ctx); err != nil {
		e.log.Error("eviction pass failed", "error", err)
	}

	if e.State() == StateCooling {
		return false
	}

	candidates, err := e.store.PrefetchCandidates(ctx, e.cfg.PrefetchBatch)
	if err != nil {
		e.log.Error("fetching prefetch candidates failed", "error", err)
		return false
	}
	if len(candidates) == 0 {
		return false
	}

	outcomes := e.downloadAll(ctx, candidates)

	attempted, succeeded := 0, 0
	for _, o := range outcomes {
		attempted++
		if o == outcomeSuccess {
			succeeded++
		}
	}
	return attempted > 0 && succeeded == 0
}

// evict implements §4.3.2 step 2: free bytes down to MaxCacheBytes minus
// headroom, oldest-by-lastViewedAt first.
func (e *CacheEngine) evict(ctx context.Context) error {
	total, err := e.store.SumCachedBytes(ctx)
	if err != nil {
		return fmt.Errorf("summing cached bytes: %w", err)
	}
	if total <= e.cfg.MaxCacheBytes {
		return nil
	}

	target := e.cfg.MaxCacheBytes - evictionHeadroomBytes
	if target < 0 {
		target = 0
	}

	for total > target {
		victims, err := e.store.EvictionCandidates(ctx, 10)
		if err != nil {
			return fmt.Errorf("fetching eviction candidates: %w", err)
		}
		if len(victims) == 0 {
			break
		}

		for _, v := range victims {
			if total <= target {
				break
			}
			freed, err := e.releaseCacheResource(v)
			if err != nil {
				e.log.Error("releasing cache resource failed", "photoId", v.PhotoID, "error", err)
				continue
			}
			if err := e.store.ClearCacheFields(ctx, v.PhotoID); err != nil {
				e.log.Error("clearing cache fields failed", "photoId", v.PhotoID, "error", err)
				continue
			}
			total -= freed
		}
	}
	return nil
}

func (e *CacheEngine) releaseCacheResource(p *storedata.Photo) (int64, error) {
	size := p.CachedSizeBytes.Int64
	if p.IsBlobMode() {
		return size, nil
	}
	if p.CachedPath.Valid && e.files != nil {
		if err := e.files.Remove(p.CachedPath.String); err != nil {
			return 0, err
		}
	}
	return size, nil
}

// downloadAll issues downloads with bounded concurrency = PrefetchBatch,
// per §4.3.2 step 5.
func (e *CacheEngine) downloadAll(ctx context.Context, candidates []*storedata.Photo) []downloadOutcome {
	sem := semaphore.NewWeighted(int64(e.cfg.PrefetchBatch))
	outcomes := make([]downloadOutcome, len(candidates))

	var wg sync.WaitGroup
	for i, p := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = outcomeNetworkFail
			continue
		}
		wg.Add(1)
		go func(i int, p *storedata.Photo) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = e.downloadOne(ctx, p)
		}(i, p)
	}
	wg.Wait()
	return outcomes
}

func (e *CacheEngine) downloadOne(ctx context.Context, p *storedata.Photo) downloadOutcome {
	reader, err := e.provider.DownloadContent(ctx, p.PhotoID, downloadTimeout)
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			e.tombstoneValidationFailure(ctx, p.PhotoID, "not found at provider")
			return outcomeValidationFail
		}
		e.log.Warn("download failed", "photoId", p.PhotoID, "error", err)
		return outcomeNetworkFail
	}
	defer reader.Close()

	raw, err := readLimited(reader, maxRawDownloadBytes)
	if err != nil {
		e.log.Warn("reading download stream failed", "photoId", p.PhotoID, "error", err)
		return outcomeNetworkFail
	}

	processed, mime, err := e.processImage(raw)
	if err != nil {
		e.tombstoneValidationFailure(ctx, p.PhotoID, err.Error())
		return outcomeValidationFail
	}

	if err := e.persist(ctx, p.PhotoID, processed, mime); err != nil {
		e.log.Error("persisting cache resource failed", "photoId", p.PhotoID, "error", err)
		return outcomeNetworkFail
	}
	return outcomeSuccess
}

func (e *CacheEngine) processImage(raw []byte) (data []byte, mime string, err error) {
	if e.normalize == nil {
		if len(raw) < 1 {
			return nil, "", fmt.Errorf("empty download")
		}
		return raw, "application/octet-stream", nil
	}
	out, err := e.normalize.Normalize(raw, NormalizeOptions{
		TargetWidth:  e.cfg.TargetWidth,
		TargetHeight: e.cfg.TargetHeight,
		Quality:      e.cfg.JPEGQuality,
	})
	if err != nil {
		return nil, "", fmt.Errorf("normalizing image: %w", err)
	}
	return out, "image/jpeg", nil
}

func (e *CacheEngine) persist(ctx context.Context, photoID string, data []byte, mime string) error {
	now := e.clock.Now().UnixMilli()
	if e.cfg.UseBlobStorage {
		return e.store.SetBlobCacheFields(ctx, photoID, data, mime, now)
	}
	path, err := e.files.Write(photoID, ".jpg", data)
	if err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return e.store.SetFileCacheFields(ctx, photoID, path, int64(len(data)), now)
}

func (e *CacheEngine) tombstoneValidationFailure(ctx context.Context, photoID, reason string) {
	e.log.Warn("tombstoning photo after validation failure", "photoId", photoID, "reason", reason)
	if err := e.store.TombstonePhoto(ctx, photoID); err != nil {
		e.log.Error("tombstoning photo failed", "photoId", photoID, "error", err)
	}
}

// Stop transitions the engine to Stopped; a Tick already in flight is left
// to finish (the Runtime is responsible for the 5s shutdown ceiling).
func (e *CacheEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateStopped
}

// readLimited reads r in full, erroring if the stream exceeds limit — the
// 50 MiB hard maximum of §4.3.2 step 5.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(r, limit+1)
	buf, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(buf)) > limit {
		return nil, fmt.Errorf("download exceeds %d byte maximum", limit)
	}
	return buf, nil
}
