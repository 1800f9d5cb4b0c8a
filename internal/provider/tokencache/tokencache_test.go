package tokencache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_missingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	c, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.cur.AccessToken != "" {
		t.Errorf("cur.AccessToken = %q, want empty for a missing file", c.cur.AccessToken)
	}
}

func TestLoad_readsExistingToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	want := Token{AccessToken: "tok", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}
	data, _ := json.Marshal(want)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("seeding token file: %v", err)
	}

	c, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.cur.AccessToken != "tok" {
		t.Errorf("cur.AccessToken = %q, want tok", c.cur.AccessToken)
	}
}

func TestGet_returnsCachedTokenWithoutRefreshing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	refreshCalls := 0
	c, err := Load(path, func(string) (Token, error) {
		refreshCalls++
		return Token{}, nil
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	c.cur = Token{AccessToken: "valid", Expiry: time.Now().Add(time.Hour)}

	tok, err := c.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tok != "valid" {
		t.Errorf("Get() = %q, want valid", tok)
	}
	if refreshCalls != 0 {
		t.Errorf("refresh called %d times, want 0 for a token well within its expiry window", refreshCalls)
	}
}

func TestGet_refreshesWhenWithinRefreshWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	refreshCalls := 0
	c, err := Load(path, func(refreshToken string) (Token, error) {
		refreshCalls++
		return Token{AccessToken: "refreshed", RefreshToken: refreshToken, Expiry: time.Now().Add(time.Hour)}, nil
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// Expiry is within the 5-minute refresh window.
	c.cur = Token{AccessToken: "stale", RefreshToken: "old-refresh", Expiry: time.Now().Add(time.Minute)}

	tok, err := c.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tok != "refreshed" {
		t.Errorf("Get() = %q, want refreshed", tok)
	}
	if refreshCalls != 1 {
		t.Errorf("refresh called %d times, want 1", refreshCalls)
	}
}

func TestGet_refreshPersistsAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	c, err := Load(path, func(refreshToken string) (Token, error) {
		return Token{AccessToken: "new", RefreshToken: "new-refresh", Expiry: time.Now().Add(time.Hour)}, nil
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := c.Get(); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("token directory has %d entries, want 1 (no leftover temp file)", len(entries))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading persisted token: %v", err)
	}
	var persisted Token
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("unmarshaling persisted token: %v", err)
	}
	if persisted.AccessToken != "new" {
		t.Errorf("persisted AccessToken = %q, want new", persisted.AccessToken)
	}
}

func TestGet_withoutRefreshFuncFailsWhenExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	c, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	_, err = c.Get()
	if err == nil {
		t.Fatal("Get() expected an error with no refresh function and no cached token")
	}
}

func TestGet_propagatesRefreshError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	wantErr := errors.New("refresh failed")
	c, err := Load(path, func(string) (Token, error) {
		return Token{}, wantErr
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	_, err = c.Get()
	if err == nil {
		t.Fatal("Get() expected an error when the refresh function fails")
	}
}
