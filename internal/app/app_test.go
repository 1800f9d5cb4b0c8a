package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"photoframe/internal/config"
	"photoframe/internal/core"
	"photoframe/internal/testutil"
)

// newTestConfig builds a minimal valid Config using the s3cloud provider
// with static credentials, so App.New's provider initialization never
// reaches the network (unlike drivefs, which requires an OAuth2 exchange).
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()

	credsPath := filepath.Join(base, "creds.json")
	data, _ := json.Marshal(map[string]string{
		"accessKeyId":     "AKID",
		"secretAccessKey": "SECRET",
	})
	if err := os.WriteFile(credsPath, data, 0600); err != nil {
		t.Fatalf("writing credentials fixture: %v", err)
	}

	cfg := config.NewConfig(base)
	cfg.Provider = "s3cloud"
	cfg.DBPath = filepath.Join(base, "photoframe.db")
	cfg.ProviderConfig = config.ProviderConfig{
		CredentialsPath: credsPath,
		Bucket:          "photos",
		Region:          "us-east-1",
		Folders:         []config.FolderSpec{{FolderID: "", Depth: -1}},
	}
	return cfg
}

func TestNew_wiresAllComponents(t *testing.T) {
	cfg := newTestConfig(t)
	sink := testutil.NewStubFrameSink()

	a, err := New(context.Background(), cfg, sink)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()
	defer a.Store().Close()

	if a.Cache == nil || a.Sync == nil || a.Display == nil || a.Runtime == nil {
		t.Fatal("New() left one or more components nil")
	}
	if a.Store() == nil {
		t.Fatal("Store() returned nil")
	}
}

func TestNew_rejectsInvalidConfig(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.JPEGQuality = 0

	_, err := New(context.Background(), cfg, testutil.NewStubFrameSink())
	var cfgErr *core.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("New() error = %v, want *core.ConfigurationError", err)
	}
}

func TestNew_rejectsStorageModeMismatchAgainstExistingStore(t *testing.T) {
	cfg := newTestConfig(t)

	a1, err := New(context.Background(), cfg, testutil.NewStubFrameSink())
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	a1.Close()
	a1.Store().Close()

	cfg.UseBlobStorage = true
	_, err = New(context.Background(), cfg, testutil.NewStubFrameSink())
	var cfgErr *core.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("New() with flipped UseBlobStorage error = %v, want *core.ConfigurationError", err)
	}
}

func TestCheckStorageMode(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	if err := checkStorageMode(ctx, st, false); err != nil {
		t.Fatalf("first checkStorageMode() error = %v", err)
	}

	if err := checkStorageMode(ctx, st, false); err != nil {
		t.Fatalf("repeat checkStorageMode() with the same mode error = %v", err)
	}

	err := checkStorageMode(ctx, st, true)
	var cfgErr *core.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("checkStorageMode() with a flipped mode error = %v, want *core.ConfigurationError", err)
	}
}

func TestProviderReachable_falseForUnreachableEndpoint(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ProviderConfig.Region = "us-east-1"
	cfg.ProviderConfig.Bucket = "nonexistent-bucket-photoframe-test"

	a, err := New(context.Background(), cfg, testutil.NewStubFrameSink())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()
	defer a.Store().Close()

	if a.ProviderReachable(context.Background()) {
		t.Skip("bucket host unexpectedly resolved in this environment")
	}
}
