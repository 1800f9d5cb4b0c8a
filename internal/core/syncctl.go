package core

import (
	"context"
	"database/sql"
	"fmt"

	"photoframe/internal/storedata"
)

const (
	// needsFullRescanSetting signals a rebuilt-empty store (§4.2 recovery).
	// A never-synced provider is recognized by the absence of a sync cursor.
	needsFullRescanSetting = "sync.needsFullRescan"
	syncCursorSetting       = "sync.cursor"

	// maxAncestorDepth bounds the ancestor-chain walk used to decide
	// whether an incremental change falls under a configured FolderSpec
	// (§4.4).
	maxAncestorDepth = 20
)

// AncestryResolver looks up a folder's parent, for the ancestor-check
// incremental scans need. Providers that can't answer this cheaply may
// return ("", false, nil) to mean "no known parent" — in that case the
// folder is treated as not under any configured tree.
type AncestryResolver interface {
	ParentFolder(ctx context.Context, folderID string) (parentID string, ok bool, err error)
}

// SyncController implements §4.4: full and incremental scans that
// reconcile Provider observations against the Metadata Store.
type SyncController struct {
	store     Store
	provider  Provider
	ancestry  AncestryResolver
	folders   []FolderSpec
	clock     Clock
	log       Logger
}

// NewSyncController wires a SyncController. ancestry may be nil; in that
// case incremental changes are accepted unconditionally under the root
// FolderSpec and rejected under any scoped one (see underConfiguredFolders).
func NewSyncController(store Store, provider Provider, ancestry AncestryResolver, folders []FolderSpec, clock Clock, log Logger) *SyncController {
	if log == nil {
		log = NewNopLogger()
	}
	return &SyncController{store: store, provider: provider, ancestry: ancestry, folders: folders, clock: clock, log: log}
}

// Run performs a full scan if no cursor is stored, or if the store has
// signaled sync.needsFullRescan=true; otherwise it performs an
// incremental scan (§4.4 "Periodicity").
func (c *SyncController) Run(ctx context.Context) error {
	needsFull, err := c.needsFullScan(ctx)
	if err != nil {
		return err
	}
	if needsFull {
		return c.FullScan(ctx)
	}
	return c.IncrementalScan(ctx)
}

func (c *SyncController) needsFullScan(ctx context.Context) (bool, error) {
	flag, ok, err := c.store.GetSetting(ctx, needsFullRescanSetting)
	if err != nil {
		return false, fmt.Errorf("reading needsFullRescan setting: %w", err)
	}
	if ok && flag == "true" {
		return true, nil
	}
	_, ok, err = c.store.GetSetting(ctx, syncCursorSetting)
	if err != nil {
		return false, fmt.Errorf("reading sync cursor: %w", err)
	}
	return !ok, nil
}

// FullScan recursively lists every configured FolderSpec, batch-upserts
// what it finds, and tombstones every row of this provider not revisited
// by the time the scan completes (§4.4).
func (c *SyncController) FullScan(ctx context.Context) error {
	scanStart := c.clock.Now().UnixMilli()
	seen := make(map[string]bool)

	for _, spec := range c.folders {
		if err := c.scanOneFolder(ctx, spec, seen, scanStart); err != nil {
			return fmt.Errorf("scanning folder %q: %w", spec.FolderID, err)
		}
	}

	providerID := c.provider.ProviderName()
	affected, err := c.store.TombstoneStalePhotos(ctx, providerID, scanStart)
	if err != nil {
		return fmt.Errorf("tombstoning stale photos: %w", err)
	}
	c.log.Info("full scan tombstoned stale photos", "provider", providerID, "count", affected)

	cursor, err := c.provider.InitialCursor(ctx)
	if err != nil {
		return fmt.Errorf("acquiring initial cursor: %w", err)
	}
	if err := c.store.SetSetting(ctx, syncCursorSetting, cursor); err != nil {
		return fmt.Errorf("persisting sync cursor: %w", err)
	}
	if err := c.store.SetSetting(ctx, needsFullRescanSetting, "false"); err != nil {
		return fmt.Errorf("clearing needsFullRescan: %w", err)
	}
	return nil
}

func (c *SyncController) scanOneFolder(ctx context.Context, spec FolderSpec, seen map[string]bool, scanStart int64) error {
	providerID := c.provider.ProviderName()

	var batch []storedata.UpsertPhotoParams
	const batchSize = 200

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.store.BatchUpsertPhotos(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for rec, err := range c.provider.ScanFolder(ctx, spec.FolderID, spec.Depth) {
		if err != nil {
			return fmt.Errorf("scan folder stream: %w", err)
		}
		if seen[rec.ID] {
			// §4.4 dedup: first occurrence across FolderSpecs wins.
			continue
		}
		seen[rec.ID] = true

		batch = append(batch, recordToUpsertParams(rec, providerID, c.clock.Now().UnixMilli(), scanStart))
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return fmt.Errorf("batch upsert: %w", err)
			}
		}
	}
	return flush()
}

func recordToUpsertParams(rec PhotoRecord, providerID string, firstSeenAt, lastSeenInScanAt int64) storedata.UpsertPhotoParams {
	return storedata.UpsertPhotoParams{
		PhotoID:          rec.ID,
		ProviderID:       providerID,
		ParentFolderID:   rec.ParentFolderID,
		Filename:         rec.Filename,
		CreatedAt:        nullableInt64(rec.CreatedAt),
		Width:            nullableInt(rec.Width),
		Height:           nullableInt(rec.Height),
		FirstSeenAt:      firstSeenAt,
		LastSeenInScanAt: lastSeenInScanAt,
	}
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// IncrementalScan fetches changesSince(cursor), applies Created/Updated as
// upserts filtered to the configured FolderSpecs, Deleted as tombstones,
// and persists nextCursor only once the sequence has drained cleanly
// (§4.4, §5 "happens-before").
func (c *SyncController) IncrementalScan(ctx context.Context) error {
	cursor, _, err := c.store.GetSetting(ctx, syncCursorSetting)
	if err != nil {
		return fmt.Errorf("reading sync cursor: %w", err)
	}

	changes, nextCursor, err := c.provider.ChangesSince(ctx, cursor)
	if err != nil {
		return fmt.Errorf("fetching changes since cursor: %w", err)
	}

	providerID := c.provider.ProviderName()
	now := c.clock.Now().UnixMilli()

	for ev, err := range changes {
		if err != nil {
			return fmt.Errorf("change event stream: %w", err)
		}
		if err := c.applyChange(ctx, ev, providerID, now); err != nil {
			return fmt.Errorf("applying change event: %w", err)
		}
	}

	if err := c.store.SetSetting(ctx, syncCursorSetting, nextCursor); err != nil {
		return fmt.Errorf("persisting next cursor: %w", err)
	}
	return nil
}

func (c *SyncController) applyChange(ctx context.Context, ev ChangeEvent, providerID string, now int64) error {
	switch ev.Kind {
	case ChangeCreated, ChangeUpdated:
		if !c.underConfiguredFolders(ctx, ev.Record.ParentFolderID) {
			return nil
		}
		params := recordToUpsertParams(ev.Record, providerID, now, now)
		return c.store.UpsertPhoto(ctx, params)
	case ChangeDeleted:
		return c.store.TombstonePhoto(ctx, ev.PhotoID)
	default:
		return fmt.Errorf("unknown change kind: %v", ev.Kind)
	}
}

// underConfiguredFolders implements the ancestor-check of §4.4: walk the
// provider's parent chain from folderID, depth-bounded to
// maxAncestorDepth and cycle-guarded, looking for a match against a
// configured FolderSpec.
func (c *SyncController) underConfiguredFolders(ctx context.Context, folderID string) bool {
	for _, spec := range c.folders {
		if spec.FolderID == RootFolderID {
			return true
		}
	}

	if c.ancestry == nil {
		return false
	}

	visited := make(map[string]bool)
	current := folderID
	for depth := 0; depth <= maxAncestorDepth; depth++ {
		for _, spec := range c.folders {
			if spec.FolderID == current {
				return true
			}
		}
		if visited[current] {
			return false
		}
		visited[current] = true

		parent, ok, err := c.ancestry.ParentFolder(ctx, current)
		if err != nil || !ok {
			return false
		}
		current = parent
	}
	return false
}
