package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"photoframe/internal/app"
	"photoframe/internal/config"
	"photoframe/internal/core"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the exit codes §6 names: 0 success, 1
// configuration error, 2 authentication failure, 3 unrecoverable store
// failure after rebuild. Every error reaching here has been wrapped by at
// least one fmt.Errorf("...: %w", err) layer, so the typed errors must be
// located with errors.As rather than a concrete-type switch.
func exitCodeFor(err error) int {
	var authErr *core.AuthError
	var storeErr *core.StoreIntegrityError
	switch {
	case errors.As(err, &authErr):
		return 2
	case errors.As(err, &storeErr):
		return 3
	default:
		return 1
	}
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// stdoutSink implements core.FrameSink by writing each FrameEvent as a
// JSON line to stdout, base64-encoding the bytes per §6's text-channel
// transport rule. It stands in for the external rendering front-end,
// which is out of scope for this repo.
type stdoutSink struct{}

type frameEventJSON struct {
	ID        string `json:"id"`
	Bytes     string `json:"bytes"`
	Filename  string `json:"filename"`
	CreatedAt *int64 `json:"createdAt,omitempty"`
	Width     *int   `json:"width,omitempty"`
	Height    *int   `json:"height,omitempty"`
}

func (stdoutSink) EmitFrame(ev core.FrameEvent) {
	out := frameEventJSON{
		ID:        ev.PhotoID,
		Bytes:     base64.StdEncoding.EncodeToString(ev.Bytes),
		Filename:  ev.Filename,
		CreatedAt: ev.CreatedAt,
		Width:     ev.Width,
		Height:    ev.Height,
	}
	data, err := json.Marshal(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encoding frame event: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

var rootCmd = &cobra.Command{
	Use:   "photoframe",
	Short: "Photo frame sync-and-prefetch daemon",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync, cache, and display loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, stdoutSink{})
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}

		return a.Run(ctx)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Println("Edit the provider, providerConfig.folders, and credential paths before running.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Provider:       %s\n", cfg.Provider)
		fmt.Printf("Base Dir:       %s\n", cfg.BaseDir)
		fmt.Printf("DB Path:        %s\n", cfg.DBPath)
		fmt.Printf("Cache Path:     %s\n", cfg.CachePath)
		fmt.Printf("Use Blob Store: %v\n", cfg.UseBlobStorage)
		fmt.Printf("Max Cache MB:   %d\n", cfg.MaxCacheSizeMB)
		fmt.Printf("JPEG Quality:   %d\n", cfg.JPEGQuality)
		fmt.Printf("Folders:        %d configured\n", len(cfg.ProviderConfig.Folders))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the provider is reachable and the cache is healthy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := app.New(ctx, cfg, stdoutSink{})
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()
		defer a.Store().Close()

		cachedBytes, err := a.Store().SumCachedBytes(ctx)
		if err != nil {
			return fmt.Errorf("reading cache occupancy: %w", err)
		}

		fmt.Printf("Provider:           %s\n", cfg.Provider)
		fmt.Printf("Reachable:          %v\n", a.ProviderReachable(ctx))
		fmt.Printf("Cache Engine state: %s\n", a.Cache.State())
		fmt.Printf("Cached bytes:       %d / %d\n", cachedBytes, cfg.MaxCacheSizeMB<<20)
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := app.New(ctx, cfg, stdoutSink{})
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()
		defer a.Store().Close()

		cursor, ok, err := a.Store().GetSetting(ctx, "sync.cursor")
		if err != nil {
			return fmt.Errorf("reading sync cursor: %w", err)
		}
		if !ok {
			fmt.Println("No sync has run yet.")
			return nil
		}

		needsRescan, _, err := a.Store().GetSetting(ctx, "sync.needsFullRescan")
		if err != nil {
			return fmt.Errorf("reading rescan flag: %w", err)
		}

		fmt.Printf("Sync cursor:        %s\n", cursor)
		fmt.Printf("Needs full rescan:  %v\n", needsRescan == "true")
		return nil
	},
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the metadata store",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup DESTPATH",
	Short: "Snapshot the metadata store to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := app.New(ctx, cfg, stdoutSink{})
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()
		defer a.Store().Close()

		if err := a.BackupDB(args[0]); err != nil {
			return fmt.Errorf("backing up store: %w", err)
		}
		fmt.Printf("Backed up metadata store to %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	dbCmd.AddCommand(dbBackupCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(dbCmd)
}
