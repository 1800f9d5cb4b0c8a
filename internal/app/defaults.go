package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment
// variables first.
// Environment variables:
//   - PHOTOFRAME_CONFIG_PATH: config file location (default: ~/.config/photoframe.toml)
//   - PHOTOFRAME_HOME: base directory for photoframe data (default: ~/.local/share/photoframe)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"cache_dir":   filepath.Join(baseDir, "cache"),
		"db_path":     filepath.Join(baseDir, "photoframe.db"),
	}, nil
}

// getConfigPath returns the config file path, checking PHOTOFRAME_CONFIG_PATH
// env var first, then falling back to the default ~/.config/photoframe.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("PHOTOFRAME_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "photoframe.toml"), nil
}

// getBaseDir returns the base directory for photoframe data, checking
// PHOTOFRAME_HOME env var first, then falling back to the XDG default
// ~/.local/share/photoframe.
func getBaseDir() (string, error) {
	if path := os.Getenv("PHOTOFRAME_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "photoframe"), nil
}
