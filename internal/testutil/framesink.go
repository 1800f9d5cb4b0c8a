package testutil

import (
	"sync"

	"photoframe/internal/core"
)

// StubFrameSink records every FrameEvent emitted, for Display Scheduler
// tests that assert on what would have crossed the front-end boundary.
type StubFrameSink struct {
	mu     sync.Mutex
	Frames []core.FrameEvent
}

func NewStubFrameSink() *StubFrameSink { return &StubFrameSink{} }

func (s *StubFrameSink) EmitFrame(ev core.FrameEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames = append(s.Frames, ev)
}

func (s *StubFrameSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Frames)
}

var _ core.FrameSink = (*StubFrameSink)(nil)
