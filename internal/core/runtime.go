package core

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// shutdownFlushTimeout bounds how long the runtime waits for an in-flight
// cache tick to settle before closing the Store regardless (§4.6/§5).
const shutdownFlushTimeout = 5 * time.Second

// Syncer, Ticker, and Scheduler name the three periodic tasks a Runtime
// drives, kept separate from the SyncController/CacheEngine/DisplayScheduler
// types themselves so runtime.go has no constructor-order dependency on
// them.
type Syncer interface {
	Run(ctx context.Context) error
}

type CacheTicker interface {
	Tick(ctx context.Context) error
	Stop()
}

type Scheduler interface {
	Tick(ctx context.Context) error
}

// Runtime owns the three independent periodic tasks of §4.6 and the
// shutdown ordering between them: stop Display first (no new frames),
// then Cache (cancel in-flight downloads, wait up to 5s), then Sync
// (cancel any in-flight Provider call), then close the Store.
type Runtime struct {
	sync    Syncer
	cache   CacheTicker
	display Scheduler
	store   Store
	clock   Clock
	log     Logger

	scanInterval    time.Duration
	cacheInterval   time.Duration
	displayInterval time.Duration
}

func NewRuntime(sync Syncer, cache CacheTicker, display Scheduler, store Store, clock Clock, log Logger, scanInterval, cacheInterval, displayInterval time.Duration) *Runtime {
	return &Runtime{
		sync:            sync,
		cache:           cache,
		display:         display,
		store:           store,
		clock:           clock,
		log:             log,
		scanInterval:    scanInterval,
		cacheInterval:   cacheInterval,
		displayInterval: displayInterval,
	}
}

// Run starts the three periodic tasks and blocks until ctx is cancelled,
// then performs the ordered shutdown. Task errors are logged per tick and
// never stop a task; the returned error is the one from closing the Store.
func (r *Runtime) Run(ctx context.Context) error {
	displayCtx, cancelDisplay := context.WithCancel(ctx)
	cacheCtx, cancelCache := context.WithCancel(ctx)
	syncCtx, cancelSync := context.WithCancel(ctx)

	var g errgroup.Group

	g.Go(func() error {
		return runPeriodic(displayCtx, r.displayInterval, func(tickCtx context.Context) error {
			if err := r.display.Tick(tickCtx); err != nil {
				r.log.Warn("display tick failed", "err", err)
			}
			return nil
		})
	})

	g.Go(func() error {
		return runPeriodic(cacheCtx, r.cacheInterval, func(tickCtx context.Context) error {
			if err := r.cache.Tick(tickCtx); err != nil {
				r.log.Warn("cache tick failed", "err", err)
			}
			return nil
		})
	})

	g.Go(func() error {
		return runPeriodic(syncCtx, r.scanInterval, func(tickCtx context.Context) error {
			if err := r.sync.Run(tickCtx); err != nil {
				r.log.Warn("sync run failed", "err", err)
			}
			return nil
		})
	})

	<-ctx.Done()

	cancelDisplay()

	r.cache.Stop()
	cancelCache()
	waitWithTimeout(shutdownFlushTimeout)

	cancelSync()

	err := g.Wait()

	if cerr := r.store.Close(); cerr != nil {
		r.log.Error("closing store", "err", cerr)
		if err == nil {
			err = cerr
		}
	}
	return err
}

// waitWithTimeout gives the prior stage's goroutines the grace period
// §5 allows for in-flight writes to settle. It does not poll task state
// directly since CacheEngine.Tick is itself bounded by its own per-download
// timeouts; this is just the ceiling the spec names.
func waitWithTimeout(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	<-timer.C
}

// runPeriodic fires fn on every tick of a ticker with the given period
// until ctx is cancelled. Errors from fn are treated as tick-local
// failures already logged by the caller; runPeriodic itself never
// returns a non-nil error except when ctx was cancelled and the caller
// wants that surfaced (it doesn't, here — shutdown is not a failure).
func runPeriodic(ctx context.Context, period time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = fn(ctx)
		}
	}
}
