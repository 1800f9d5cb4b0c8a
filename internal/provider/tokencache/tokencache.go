// Package tokencache implements the token-refresh persistence the
// Provider contract calls for in §4.1: "if accessToken expiry is within 5
// minutes, refresh before any request; on refresh, persist new
// {accessToken, refreshToken, expiry} atomically to a configured path."
// Grounded on the rest of this codebase's atomic temp-file-then-rename
// writers.
package tokencache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// refreshWindow is how far ahead of expiry a refresh is triggered.
const refreshWindow = 5 * time.Minute

// Token is the on-disk token shape §6 calls out: "Token files containing
// {accessToken, refreshToken, expiry} in a stable key/value form."
type Token struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiry       time.Time `json:"expiry"`
}

// RefreshFunc exchanges a refresh token for a new access token.
type RefreshFunc func(refreshToken string) (Token, error)

// Cache holds a Token in memory, refreshing it from disk and via
// RefreshFunc as needed, and persists every refresh atomically.
type Cache struct {
	path    string
	refresh RefreshFunc
	clock   func() time.Time

	mu  sync.Mutex
	cur Token
}

// Load reads the token at path (if present) and returns a Cache wrapping
// it. refresh is called whenever the cached token is within 5 minutes of
// expiry.
func Load(path string, refresh RefreshFunc) (*Cache, error) {
	c := &Cache{path: path, refresh: refresh, clock: time.Now}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading token cache: %w", err)
	}
	if err := json.Unmarshal(data, &c.cur); err != nil {
		return nil, fmt.Errorf("parsing token cache: %w", err)
	}
	return c, nil
}

// Get returns a valid access token, refreshing first if the cached one is
// within refreshWindow of expiry (or already expired).
func (c *Cache) Get() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur.AccessToken != "" && c.clock().Add(refreshWindow).Before(c.cur.Expiry) {
		return c.cur.AccessToken, nil
	}

	if c.refresh == nil {
		return "", fmt.Errorf("token expired and no refresh function configured")
	}
	next, err := c.refresh(c.cur.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refreshing token: %w", err)
	}
	if err := c.persist(next); err != nil {
		return "", err
	}
	c.cur = next
	return c.cur.AccessToken, nil
}

// persist atomically writes tok to c.path via temp-file-then-rename.
func (c *Cache) persist(tok Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating token cache directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-token-*")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp token file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp token file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("renaming token file: %w", err)
	}

	success = true
	return nil
}
