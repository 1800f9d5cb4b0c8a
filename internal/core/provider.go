package core

import (
	"context"
	"io"
	"iter"
	"time"
)

// Provider is the capability contract of §4.1. Two concrete implementations
// exist: internal/provider/drivefs (files-in-drive-A) and
// internal/provider/s3cloud (personal-cloud-B). They share no state and are
// never related by inheritance — only by satisfying this interface.
//
// ScanFolder and ChangesSince return iter.Seq2 sequences: "finite lazy
// sequence" from the spec, expressed as Go 1.23 range-over-func iterators.
// Iteration stops at the first error the sequence yields; callers must not
// keep ranging past a non-nil error.
type Provider interface {
	// Initialize prepares the Provider for use (loads/validates credentials).
	// Returns *AuthError if credentials are missing or invalid.
	Initialize(ctx context.Context, cfg ProviderConfig) error

	// IsReachable performs a DNS resolution of the provider's canonical
	// host. Never fails — returns false instead of an error.
	IsReachable(ctx context.Context) bool

	// ScanFolder recursively lists photos under folderID (RootFolderID for
	// the configured root) up to maxDepth levels. maxDepth == -1 means
	// unbounded.
	ScanFolder(ctx context.Context, folderID string, maxDepth int) iter.Seq2[PhotoRecord, error]

	// DownloadContent streams a photo's raw bytes. The caller must Close
	// the returned reader. timeout bounds the whole download, not each
	// read.
	DownloadContent(ctx context.Context, photoID string, timeout time.Duration) (io.ReadCloser, error)

	// ChangesSince returns everything that changed after the opaque cursor,
	// plus the cursor to persist once the sequence has drained cleanly.
	ChangesSince(ctx context.Context, cursor string) (changes iter.Seq2[ChangeEvent, error], nextCursor string, err error)

	// InitialCursor returns a cursor representing "nothing seen yet," used
	// to seed incremental scanning after a full scan completes.
	InitialCursor(ctx context.Context) (string, error)

	// ProviderName identifies this Provider implementation, used as the
	// providerId namespace for photos and as the Setting key prefix for
	// its sync cursor. Never fails.
	ProviderName() string
}

// ProviderConfig carries the subset of config.ProviderConfig a Provider
// implementation needs, kept separate from the config package so core has
// no dependency on config's TOML tags.
type ProviderConfig struct {
	CredentialsPath string
	TokenPath       string
	Folders         []FolderSpec

	// S3-compatible fields, used only by personal-cloud-B.
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string

	// Drive-style fields, used only by files-in-drive-A.
	APIBaseURL string
}
