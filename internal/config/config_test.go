package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:   "/home/user/.local/share/photoframe",
		LogDir:    "/home/user/.local/share/photoframe/log",
		DBPath:    "/home/user/.local/share/photoframe/photoframe.db",
		CachePath: "/home/user/.local/share/photoframe/cache",
		Provider:  "drivefs",
		ProviderConfig: ProviderConfig{
			CredentialsPath: "/secrets/creds.json",
			TokenPath:       "/secrets/token.json",
			Folders:         []FolderSpec{{FolderID: "", Depth: -1}},
		},
		UpdateIntervalMS:    60_000,
		ScanIntervalMS:      21_600_000,
		CacheTickIntervalMS: 30_000,
		MaxCacheSizeMB:      200,
		PrefetchBatchSize:   5,
		ShowWidth:           1920,
		ShowHeight:          1080,
		JPEGQuality:         90,
		UseBlobStorage:      false,
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.Provider != original.Provider {
		t.Errorf("Provider = %q, want %q", got.Provider, original.Provider)
	}
	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if len(got.ProviderConfig.Folders) != 1 {
		t.Fatalf("len(Folders) = %d, want 1", len(got.ProviderConfig.Folders))
	}
	if got.ProviderConfig.Folders[0].Depth != -1 {
		t.Errorf("Folders[0].Depth = %d, want -1", got.ProviderConfig.Folders[0].Depth)
	}
	if got.MaxCacheSizeMB != 200 {
		t.Errorf("MaxCacheSizeMB = %d, want 200", got.MaxCacheSizeMB)
	}
	if got.JPEGQuality != 90 {
		t.Errorf("JPEGQuality = %d, want 90", got.JPEGQuality)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/photoframe")

	if cfg.BaseDir != "/data/photoframe" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/photoframe")
	}
	if cfg.LogDir != "/data/photoframe/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/photoframe/log")
	}
	if cfg.MaxCacheSizeMB != DefaultMaxCacheSizeMB {
		t.Errorf("MaxCacheSizeMB = %d, want %d", cfg.MaxCacheSizeMB, DefaultMaxCacheSizeMB)
	}
	if cfg.JPEGQuality != DefaultJPEGQuality {
		t.Errorf("JPEGQuality = %d, want %d", cfg.JPEGQuality, DefaultJPEGQuality)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "photoframe.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "photoframe.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "photoframe.toml")
		cfg := NewConfig(dir)
		cfg.Provider = "s3cloud"
		cfg.ProviderConfig.Folders = []FolderSpec{{FolderID: "root", Depth: 0}}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Provider != "s3cloud" {
			t.Errorf("Provider = %q, want %q", got.Provider, "s3cloud")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/photoframe.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("rejects unknown provider", func(t *testing.T) {
		cfg := NewConfig("/data/photoframe")
		cfg.Provider = "dropbox"
		cfg.ProviderConfig.Folders = []FolderSpec{{FolderID: "", Depth: -1}}
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for unknown provider")
		}
	})

	t.Run("rejects empty folder list", func(t *testing.T) {
		cfg := NewConfig("/data/photoframe")
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for empty folders")
		}
	})

	t.Run("rejects out-of-range jpeg quality", func(t *testing.T) {
		cfg := NewConfig("/data/photoframe")
		cfg.ProviderConfig.Folders = []FolderSpec{{FolderID: "", Depth: -1}}
		cfg.JPEGQuality = 0
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for invalid jpeg quality")
		}
	})

	t.Run("accepts a minimal valid config", func(t *testing.T) {
		cfg := NewConfig("/data/photoframe")
		cfg.ProviderConfig.Folders = []FolderSpec{{FolderID: "", Depth: -1}}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
