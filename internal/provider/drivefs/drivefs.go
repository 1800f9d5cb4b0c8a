// Package drivefs implements the files-in-drive-A Provider conformance of
// §4.1 over a generic OAuth2-protected REST API: net/http plus
// golang.org/x/oauth2 for bearer tokens, paginated folder listing with a
// 500ms pacing delay between pages, and the circular-folder/depth-control
// defenses the contract requires of every Provider.
package drivefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"photoframe/internal/core"
	"photoframe/internal/provider/retry"
	"photoframe/internal/provider/tokencache"
)

// pagePause is the pacing delay between successive list-folder pages
// (§4.1 "pagination pacing").
const pagePause = 500 * time.Millisecond

// Provider implements core.Provider against a generic files-in-drive REST
// API.
type Provider struct {
	apiBase string
	host    string
	client  *http.Client
	tokens  *tokencache.Cache
}

// New constructs an uninitialized drivefs Provider. Initialize then reads
// cfg.APIBaseURL to select the API host and cfg.TokenPath/CredentialsPath
// to feed the token cache and OAuth2 client credentials respectively.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) ProviderName() string { return "drivefs" }

// Initialize loads client credentials and the token cache, and validates
// that required configuration is present (§4.1 initialize()).
func (p *Provider) Initialize(ctx context.Context, cfg core.ProviderConfig) error {
	if cfg.APIBaseURL == "" {
		return &core.ConfigurationError{Msg: "drivefs requires providerConfig.apiBaseUrl"}
	}
	if cfg.CredentialsPath == "" || cfg.TokenPath == "" {
		return &core.ConfigurationError{Msg: "drivefs requires providerConfig.credentialsPath and tokenPath"}
	}

	base, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return &core.ConfigurationError{Msg: fmt.Sprintf("invalid apiBaseUrl: %v", err)}
	}

	oauthCfg, err := loadOAuthConfig(cfg.CredentialsPath)
	if err != nil {
		return &core.AuthError{Provider: p.ProviderName(), Msg: err.Error()}
	}

	refresh := func(refreshToken string) (tokencache.Token, error) {
		src := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		tok, err := src.Token()
		if err != nil {
			return tokencache.Token{}, err
		}
		return tokencache.Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, Expiry: tok.Expiry}, nil
	}

	cache, err := tokencache.Load(cfg.TokenPath, refresh)
	if err != nil {
		return &core.AuthError{Provider: p.ProviderName(), Msg: err.Error()}
	}

	p.apiBase = cfg.APIBaseURL
	p.host = base.Host
	p.tokens = cache
	p.client = &http.Client{Timeout: 30 * time.Second}
	return nil
}

// IsReachable performs a DNS resolution of the provider's canonical host,
// per §4.1, never returning an error.
func (p *Provider) IsReachable(ctx context.Context) bool {
	if p.host == "" {
		return false
	}
	resolver := net.Resolver{}
	addrs, err := resolver.LookupHost(ctx, p.host)
	return err == nil && len(addrs) > 0
}

// listEntry is one row of a folder-listing page.
type listEntry struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ParentID       string `json:"parentId"`
	IsFolder       bool   `json:"isFolder"`
	CreatedAtMs    *int64 `json:"createdAtMs"`
	Width          *int   `json:"width"`
	Height         *int   `json:"height"`
}

type listPage struct {
	Entries       []listEntry `json:"entries"`
	NextPageToken string      `json:"nextPageToken"`
}

// ScanFolder recursively lists folderID to maxDepth, yielding photos at
// every level visited. maxDepth == -1 means unbounded; 0 means the folder
// itself only (§4.1 depth control, circular-folder defense).
func (p *Provider) ScanFolder(ctx context.Context, folderID string, maxDepth int) iter.Seq2[core.PhotoRecord, error] {
	return func(yield func(core.PhotoRecord, error) bool) {
		visited := make(map[string]bool)
		p.scanRecursive(ctx, folderID, maxDepth, 0, visited, yield)
	}
}

func (p *Provider) scanRecursive(ctx context.Context, folderID string, maxDepth, depth int, visited map[string]bool, yield func(core.PhotoRecord, error) bool) bool {
	if visited[folderID] {
		return true // circular-folder defense: silently skip re-entry
	}
	visited[folderID] = true

	pageToken := ""
	first := true
	for {
		if !first {
			time.Sleep(pagePause)
		}
		first = false

		page, err := p.listPage(ctx, folderID, pageToken)
		if err != nil {
			return yield(core.PhotoRecord{}, err)
		}

		for _, e := range page.Entries {
			if e.IsFolder {
				if maxDepth == -1 || depth < maxDepth {
					if !p.scanRecursive(ctx, e.ID, maxDepth, depth+1, visited, yield) {
						return false
					}
				}
				continue
			}
			rec := core.PhotoRecord{
				ID:             e.ID,
				Filename:       e.Name,
				ParentFolderID: e.ParentID,
				CreatedAt:      e.CreatedAtMs,
				Width:          e.Width,
				Height:         e.Height,
			}
			if !yield(rec, nil) {
				return false
			}
		}

		if page.NextPageToken == "" {
			return true
		}
		pageToken = page.NextPageToken
	}
}

func (p *Provider) listPage(ctx context.Context, folderID, pageToken string) (listPage, error) {
	var page listPage
	err := retry.Do(ctx, retry.DefaultClassifier, func(ctx context.Context) error {
		q := url.Values{}
		q.Set("folderId", folderID)
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		req, err := p.newRequest(ctx, http.MethodGet, "/folders/children?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return &core.NetworkError{Op: "listPage", Err: err}
		}
		defer resp.Body.Close()
		if err := p.classifyStatus(resp); err != nil {
			return err
		}
		return json.NewDecoder(resp.Body).Decode(&page)
	})
	return page, err
}

// DownloadContent fetches a photo's bytes with the given timeout, per
// §4.1.
func (p *Provider) DownloadContent(ctx context.Context, photoID string, timeout time.Duration) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	var body io.ReadCloser
	err := retry.Do(ctx, retry.DefaultClassifier, func(ctx context.Context) error {
		req, err := p.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(photoID)+"/content", nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return &core.NetworkError{Op: "downloadContent", Err: err}
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return &core.NotFoundError{PhotoID: photoID}
		}
		if err := p.classifyStatus(resp); err != nil {
			resp.Body.Close()
			return err
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelOnCloseBody{ReadCloser: body, cancel: cancel}, nil
}

// cancelOnCloseBody releases the download's timeout context once the
// caller is done reading, instead of leaking it until the timer fires.
type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

// changeEntry is one row of a changesSince page.
type changeEntry struct {
	Type   string    `json:"type"` // "created" | "updated" | "deleted"
	Entry  listEntry `json:"entry"`
	ID     string    `json:"id"`
}

type changePage struct {
	Changes       []changeEntry `json:"changes"`
	NextPageToken string        `json:"nextPageToken"`
}

// ChangesSince implements §4.1's incremental-changes-since(token).
func (p *Provider) ChangesSince(ctx context.Context, cursor string) (iter.Seq2[core.ChangeEvent, error], string, error) {
	firstPage, err := p.changePage(ctx, cursor)
	if err != nil {
		return nil, "", err
	}

	seq := func(yield func(core.ChangeEvent, error) bool) {
		page := firstPage
		for {
			for _, c := range page.Changes {
				ev, convErr := toChangeEvent(c)
				if !yield(ev, convErr) {
					return
				}
			}
			if page.NextPageToken == "" {
				return
			}
			time.Sleep(pagePause)
			next, err := p.changePage(ctx, page.NextPageToken)
			if err != nil {
				yield(core.ChangeEvent{}, err)
				return
			}
			page = next
		}
	}

	nextCursor := firstPage.NextPageToken
	if nextCursor == "" {
		nextCursor = cursor
	}
	return seq, nextCursor, nil
}

func toChangeEvent(c changeEntry) (core.ChangeEvent, error) {
	switch c.Type {
	case "created":
		return core.ChangeEvent{Kind: core.ChangeCreated, Record: entryToRecord(c.Entry)}, nil
	case "updated":
		return core.ChangeEvent{Kind: core.ChangeUpdated, Record: entryToRecord(c.Entry)}, nil
	case "deleted":
		return core.ChangeEvent{Kind: core.ChangeDeleted, PhotoID: c.ID}, nil
	default:
		return core.ChangeEvent{}, fmt.Errorf("unknown change type: %s", c.Type)
	}
}

func entryToRecord(e listEntry) core.PhotoRecord {
	return core.PhotoRecord{
		ID:             e.ID,
		Filename:       e.Name,
		ParentFolderID: e.ParentID,
		CreatedAt:      e.CreatedAtMs,
		Width:          e.Width,
		Height:         e.Height,
	}
}

func (p *Provider) changePage(ctx context.Context, pageToken string) (changePage, error) {
	var page changePage
	err := retry.Do(ctx, retry.DefaultClassifier, func(ctx context.Context) error {
		q := url.Values{}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		req, err := p.newRequest(ctx, http.MethodGet, "/changes?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return &core.NetworkError{Op: "changesSince", Err: err}
		}
		defer resp.Body.Close()
		if err := p.classifyStatus(resp); err != nil {
			return err
		}
		return json.NewDecoder(resp.Body).Decode(&page)
	})
	return page, err
}

// InitialCursor fetches a fresh change token for the start of the first
// full scan (§4.1 initialCursor()).
func (p *Provider) InitialCursor(ctx context.Context) (string, error) {
	var cursor struct {
		Token string `json:"token"`
	}
	err := retry.Do(ctx, retry.DefaultClassifier, func(ctx context.Context) error {
		req, err := p.newRequest(ctx, http.MethodGet, "/changes/startToken", nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return &core.NetworkError{Op: "initialCursor", Err: err}
		}
		defer resp.Body.Close()
		if err := p.classifyStatus(resp); err != nil {
			return err
		}
		return json.NewDecoder(resp.Body).Decode(&cursor)
	})
	return cursor.Token, err
}

// fileMeta is the response shape of a single-entry metadata fetch.
type fileMeta struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId"`
}

// ParentFolder implements core.AncestryResolver for the incremental-scan
// ancestor walk of §4.4: it fetches folderID's own metadata and reports its
// parentId. A folder with no parent (drive root) reports ok=false rather
// than an empty string, so callers don't mistake "" for a real folder ID.
func (p *Provider) ParentFolder(ctx context.Context, folderID string) (string, bool, error) {
	var meta fileMeta
	err := retry.Do(ctx, retry.DefaultClassifier, func(ctx context.Context) error {
		req, err := p.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(folderID), nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return &core.NetworkError{Op: "parentFolder", Err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return &core.NotFoundError{PhotoID: folderID}
		}
		if err := p.classifyStatus(resp); err != nil {
			return err
		}
		return json.NewDecoder(resp.Body).Decode(&meta)
	})
	if err != nil {
		var notFound *core.NotFoundError
		if errors.As(err, &notFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if meta.ParentID == "" {
		return "", false, nil
	}
	return meta.ParentID, true, nil
}

func (p *Provider) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	tok, err := p.tokens.Get()
	if err != nil {
		return nil, &core.AuthError{Provider: p.ProviderName(), Msg: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, method, p.apiBase+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return req, nil
}

func (p *Provider) classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &core.AuthError{Provider: p.ProviderName(), Msg: "request rejected with status " + strconv.Itoa(resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &core.NetworkError{Op: "http", Err: fmt.Errorf("status %d", resp.StatusCode), RateLimit: true}
	case resp.StatusCode >= 500:
		return &core.NetworkError{Op: "http", Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return fmt.Errorf("drivefs request failed with status %d", resp.StatusCode)
	default:
		return nil
	}
}

// loadOAuthConfig reads a client-credentials JSON file shaped
// {clientId, clientSecret, tokenUrl}.
func loadOAuthConfig(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	var creds struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
		TokenURL     string `json:"tokenUrl"`
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: creds.TokenURL},
	}, nil
}

var _ core.Provider = (*Provider)(nil)
