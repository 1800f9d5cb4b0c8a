package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"photoframe/internal/cachefs"
	"photoframe/internal/config"
	"photoframe/internal/core"
	"photoframe/internal/imaging"
	"photoframe/internal/provider"
	"photoframe/internal/store"
)

// App is the wiring layer between the CLI and the five runtime components:
// it constructs a Provider, a Store, the Cache Engine, Sync Controller,
// and Display Scheduler from config, and hands back a Runtime ready to
// drive them. The caller must call Close when done.
type App struct {
	cfg      *config.Config
	provider core.Provider
	store    *store.SQLiteStore
	files    *cachefs.Store
	logFile  *os.File

	Cache   *core.CacheEngine
	Sync    *core.SyncController
	Display *core.DisplayScheduler
	Runtime *core.Runtime
}

// New constructs a fully wired App from cfg. sink is the external
// front-end boundary the Display Scheduler emits frames to.
func New(ctx context.Context, cfg *config.Config, sink core.FrameSink) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &core.ConfigurationError{Msg: err.Error()}
	}

	logger, logFile, err := newLogger(cfg.LogDir, cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := newSlogAdapter(logger)

	p, err := provider.NewFromConfig(ctx, cfg)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("initializing provider: %w", err)
	}

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}

	if err := checkStorageMode(ctx, st, cfg.UseBlobStorage); err != nil {
		st.Close()
		logFile.Close()
		return nil, err
	}

	var files *cachefs.Store
	if !cfg.UseBlobStorage {
		files, err = cachefs.NewStore(cfg.CachePath)
		if err != nil {
			st.Close()
			logFile.Close()
			return nil, fmt.Errorf("opening cache directory: %w", err)
		}
	}

	normalize := normalizerAdapter{imaging.New()}

	clock := core.RealClock{}

	folders := make([]core.FolderSpec, len(cfg.ProviderConfig.Folders))
	for i, f := range cfg.ProviderConfig.Folders {
		folders[i] = core.FolderSpec{FolderID: f.FolderID, Depth: f.Depth}
	}

	cacheCfg := core.CacheEngineConfig{
		PrefetchBatch:  cfg.PrefetchBatchSize,
		MaxCacheBytes:  cfg.MaxCacheSizeMB << 20,
		TargetWidth:    cfg.ShowWidth,
		TargetHeight:   cfg.ShowHeight,
		JPEGQuality:    cfg.JPEGQuality,
		UseBlobStorage: cfg.UseBlobStorage,
	}

	var writer core.CacheWriter
	if files != nil {
		writer = files
	}

	cache := core.NewCacheEngine(st, p, writer, normalize, clock, log, cacheCfg)

	var ancestry core.AncestryResolver
	if resolver, ok := p.(core.AncestryResolver); ok {
		ancestry = resolver
	}
	sync := core.NewSyncController(st, p, ancestry, folders, clock, log)

	var reader core.CacheReader
	if files != nil {
		reader = files
	}
	displayInterval := durationFromMS(cfg.UpdateIntervalMS)
	display := core.NewDisplayScheduler(st, reader, sink, clock, log, displayInterval)

	rt := core.NewRuntime(sync, cache, display, st, clock, log,
		durationFromMS(cfg.ScanIntervalMS),
		durationFromMS(cfg.CacheTickIntervalMS),
		displayInterval,
	)

	return &App{
		cfg:      cfg,
		provider: p,
		store:    st,
		files:    files,
		logFile:  logFile,
		Cache:    cache,
		Sync:     sync,
		Display:  display,
		Runtime:  rt,
	}, nil
}

// Run blocks driving all three periodic tasks until ctx is cancelled,
// then performs the ordered shutdown (§4.6).
func (a *App) Run(ctx context.Context) error {
	return a.Runtime.Run(ctx)
}

// BackupDB snapshots the metadata store to destPath via VACUUM INTO,
// for the CLI's "db backup" command.
func (a *App) BackupDB(destPath string) error {
	return a.store.BackupTo(destPath)
}

// ProviderReachable reports whether the configured Provider's canonical
// host currently resolves, for the CLI's "status" command.
func (a *App) ProviderReachable(ctx context.Context) bool {
	return a.provider.IsReachable(ctx)
}

// Close releases the log file. The Store is closed by Runtime.Run's
// shutdown sequence when running the daemon; callers that construct an
// App without calling Run (e.g. one-shot CLI commands) must close the
// store themselves via Store().
func (a *App) Close() error {
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}

// Store exposes the underlying metadata store for one-shot CLI commands
// that need it without running the full daemon loop.
func (a *App) Store() *store.SQLiteStore { return a.store }

func durationFromMS(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

// storageModeSetting persists which cache storage mode (blob or file) a
// store was initialized with, so a later config change can't silently
// strand cache rows in the other mode's invariant shape (§4.3.3).
const storageModeSetting = "cache.storageMode"

func checkStorageMode(ctx context.Context, st *store.SQLiteStore, useBlobStorage bool) error {
	want := "file"
	if useBlobStorage {
		want = "blob"
	}

	got, ok, err := st.GetSetting(ctx, storageModeSetting)
	if err != nil {
		return fmt.Errorf("reading storage mode setting: %w", err)
	}
	if !ok {
		return st.SetSetting(ctx, storageModeSetting, want)
	}
	if got != want {
		return &core.ConfigurationError{Msg: fmt.Sprintf(
			"useBlobStorage=%v (%q) conflicts with this store's existing storage mode %q; "+
				"changing storage mode requires a fresh metadata store", useBlobStorage, want, got)}
	}
	return nil
}

// normalizerAdapter bridges imaging.Normalizer into core.Normalizer —
// the two interfaces are structurally identical but kept separate to
// avoid an import cycle between internal/core and internal/imaging.
type normalizerAdapter struct {
	inner imaging.Normalizer
}

func (n normalizerAdapter) Normalize(raw []byte, opts core.NormalizeOptions) ([]byte, error) {
	return n.inner.Normalize(raw, imaging.Options{
		TargetWidth:  opts.TargetWidth,
		TargetHeight: opts.TargetHeight,
		Quality:      opts.Quality,
	})
}
