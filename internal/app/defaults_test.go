package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("PHOTOFRAME_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("PHOTOFRAME_HOME", "/custom/photoframe")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["base_dir"] != "/custom/photoframe" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/photoframe")
		}
		if defaults["log_dir"] != "/custom/photoframe/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/photoframe/log")
		}
		if defaults["cache_dir"] != "/custom/photoframe/cache" {
			t.Errorf("cache_dir = %q, want %q", defaults["cache_dir"], "/custom/photoframe/cache")
		}
		if defaults["db_path"] != "/custom/photoframe/photoframe.db" {
			t.Errorf("db_path = %q, want %q", defaults["db_path"], "/custom/photoframe/photoframe.db")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("PHOTOFRAME_CONFIG_PATH", "")
		t.Setenv("PHOTOFRAME_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "photoframe.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "photoframe")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}

		wantLog := filepath.Join(wantBase, "log")
		if defaults["log_dir"] != wantLog {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], wantLog)
		}
	})
}
