// Package config loads and persists the TOML configuration surface
// described in §6: provider selection, scheduling periods, cache limits,
// and storage mode.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level photoframe configuration.
type Config struct {
	BaseDir   string `toml:"base_dir"`
	LogDir    string `toml:"log_dir"`
	DBPath    string `toml:"db_path"`
	CachePath string `toml:"cache_path"`

	Provider       string         `toml:"provider"` // "drivefs" or "s3cloud"
	ProviderConfig ProviderConfig `toml:"providerConfig"`

	UpdateIntervalMS    int64 `toml:"updateInterval"`
	ScanIntervalMS      int64 `toml:"scanInterval"`
	CacheTickIntervalMS int64 `toml:"cacheTickInterval"`

	MaxCacheSizeMB    int64 `toml:"maxCacheSizeMB"`
	PrefetchBatchSize int   `toml:"prefetchBatchSize"`

	ShowWidth  int `toml:"showWidth"`
	ShowHeight int `toml:"showHeight"`

	JPEGQuality    int  `toml:"jpegQuality"`
	UseBlobStorage bool `toml:"useBlobStorage"`
}

// ProviderConfig holds provider-specific settings. This uses a tagged
// union pattern keyed by Config.Provider — the same discriminator
// discipline the rest of the options in this file follow.
type ProviderConfig struct {
	CredentialsPath string       `toml:"credentialsPath"`
	TokenPath       string       `toml:"tokenPath"`
	Folders         []FolderSpec `toml:"folders"`

	// S3-specific fields (only used when Config.Provider == "s3cloud")
	Bucket   string `toml:"bucket,omitempty"`
	Prefix   string `toml:"prefix,omitempty"`
	Region   string `toml:"region,omitempty"`
	Endpoint string `toml:"endpoint,omitempty"`

	// drivefs-specific field (only used when Config.Provider == "drivefs")
	APIBaseURL string `toml:"apiBaseUrl,omitempty"`
}

// FolderSpec mirrors core.FolderSpec in TOML-friendly form. FolderID ==
// "" means the provider's root sentinel.
type FolderSpec struct {
	FolderID string `toml:"id"`
	Depth    int    `toml:"depth"`
}

// Defaults matching §4 and §6's stated defaults.
const (
	DefaultUpdateIntervalMS    = 60_000         // Display Scheduler
	DefaultScanIntervalMS      = 6 * 3_600_000  // Sync Controller
	DefaultCacheTickIntervalMS = 30_000         // Cache Engine
	DefaultMaxCacheSizeMB      = 200
	DefaultPrefetchBatchSize   = 5
	DefaultJPEGQuality         = 90
)

// NewConfig creates a Config with photoframe's stated defaults and paths
// rooted under baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:             baseDir,
		LogDir:              filepath.Join(baseDir, "log"),
		DBPath:              filepath.Join(baseDir, "photoframe.db"),
		CachePath:           filepath.Join(baseDir, "cache"),
		Provider:            "drivefs",
		UpdateIntervalMS:    DefaultUpdateIntervalMS,
		ScanIntervalMS:      DefaultScanIntervalMS,
		CacheTickIntervalMS: DefaultCacheTickIntervalMS,
		MaxCacheSizeMB:      DefaultMaxCacheSizeMB,
		PrefetchBatchSize:   DefaultPrefetchBatchSize,
		ShowWidth:           1920,
		ShowHeight:          1080,
		JPEGQuality:         DefaultJPEGQuality,
		UseBlobStorage:      false,
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the
// provided Config. Refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// Validate checks the configuration options §7's ConfigurationError covers
// at startup, before any Provider or Store is constructed.
func (c *Config) Validate() error {
	switch c.Provider {
	case "drivefs", "s3cloud":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if len(c.ProviderConfig.Folders) == 0 {
		return fmt.Errorf("providerConfig.folders must list at least one folder")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpegQuality must be within 1-100, got %d", c.JPEGQuality)
	}
	if !c.UseBlobStorage && c.CachePath == "" {
		return fmt.Errorf("cachePath is required when useBlobStorage is false")
	}
	if c.MaxCacheSizeMB <= 0 {
		return fmt.Errorf("maxCacheSizeMB must be positive, got %d", c.MaxCacheSizeMB)
	}
	if c.PrefetchBatchSize <= 0 {
		return fmt.Errorf("prefetchBatchSize must be positive, got %d", c.PrefetchBatchSize)
	}
	return nil
}
