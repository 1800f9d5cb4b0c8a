package testutil

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"time"

	"photoframe/internal/core"
)

// StubProvider is a fake core.Provider driven entirely by in-memory
// fixtures, for Sync Controller and Cache Engine tests that should not
// touch the network.
type StubProvider struct {
	mu sync.Mutex

	Name       string
	Reachable  bool
	Records    []core.PhotoRecord
	Changes    []core.ChangeEvent
	NextCursor string
	InitCursor string
	Content    map[string][]byte

	ScanErr     error
	DownloadErr map[string]error
}

func NewStubProvider(name string) *StubProvider {
	return &StubProvider{
		Name:        name,
		Reachable:   true,
		Content:     make(map[string][]byte),
		DownloadErr: make(map[string]error),
	}
}

func (p *StubProvider) ProviderName() string { return p.Name }

func (p *StubProvider) Initialize(ctx context.Context, cfg core.ProviderConfig) error { return nil }

func (p *StubProvider) IsReachable(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Reachable
}

func (p *StubProvider) ScanFolder(ctx context.Context, folderID string, maxDepth int) iter.Seq2[core.PhotoRecord, error] {
	return func(yield func(core.PhotoRecord, error) bool) {
		p.mu.Lock()
		records := append([]core.PhotoRecord{}, p.Records...)
		scanErr := p.ScanErr
		p.mu.Unlock()

		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
		if scanErr != nil {
			yield(core.PhotoRecord{}, scanErr)
		}
	}
}

func (p *StubProvider) DownloadContent(ctx context.Context, photoID string, timeout time.Duration) (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err, ok := p.DownloadErr[photoID]; ok {
		return nil, err
	}
	data, ok := p.Content[photoID]
	if !ok {
		return nil, &core.NotFoundError{PhotoID: photoID}
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (p *StubProvider) ChangesSince(ctx context.Context, cursor string) (iter.Seq2[core.ChangeEvent, error], string, error) {
	p.mu.Lock()
	changes := append([]core.ChangeEvent{}, p.Changes...)
	next := p.NextCursor
	p.mu.Unlock()

	seq := func(yield func(core.ChangeEvent, error) bool) {
		for _, ev := range changes {
			if !yield(ev, nil) {
				return
			}
		}
	}
	return seq, next, nil
}

func (p *StubProvider) InitialCursor(ctx context.Context) (string, error) {
	return p.InitCursor, nil
}

// SetContent stores raw bytes DownloadContent will serve for photoID.
func (p *StubProvider) SetContent(photoID string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Content[photoID] = data
}

var _ core.Provider = (*StubProvider)(nil)

// NewPhotoRecord builds a minimal PhotoRecord fixture for id.
func NewPhotoRecord(id string) core.PhotoRecord {
	return core.PhotoRecord{ID: id, Filename: fmt.Sprintf("%s.jpg", id), ParentFolderID: ""}
}
