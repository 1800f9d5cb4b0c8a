package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestFrameHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name      string
		component string
		level     slog.Level
		message   string
		attrs     []slog.Attr
		want      string
	}{
		{
			name:      "basic info message",
			component: "cache",
			level:     slog.LevelInfo,
			message:   "prefetched photo",
			want:      "2024-06-15T14:30:45Z\tINFO\tcache\tprefetched photo\n",
		},
		{
			name:      "debug level",
			component: "sync",
			level:     slog.LevelDebug,
			message:   "checking cursor",
			want:      "2024-06-15T14:30:45Z\tDEBUG\tsync\tchecking cursor\n",
		},
		{
			name:      "with record attrs",
			component: "display",
			level:     slog.LevelInfo,
			message:   "emitted frame",
			attrs:     []slog.Attr{slog.String("photoId", "abc123"), slog.Int("bytes", 4096)},
			want:      "2024-06-15T14:30:45Z\tINFO\tdisplay\temitted frame\tphotoId=abc123\tbytes=4096\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &frameHandler{w: &buf, component: tt.component}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestFrameHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &frameHandler{w: &buf, component: "cache"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("provider", "drivefs")}).(*frameHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "download", 0)
	r.AddAttrs(slog.String("photoId", "xyz"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "provider=drivefs") {
		t.Errorf("expected pre-set attr provider=drivefs, got: %q", got)
	}
	if !strings.Contains(got, "photoId=xyz") {
		t.Errorf("expected record attr photoId=xyz, got: %q", got)
	}
}

func TestFrameHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &frameHandler{w: &buf, component: "cache", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*frameHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestFrameHandler_Enabled(t *testing.T) {
	h := &frameHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-component")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	if logger == nil {
		t.Fatal("newLogger() returned nil logger")
	}
	if f == nil {
		t.Fatal("newLogger() returned nil file")
	}
}

func TestSlogAdapter_SatisfiesCoreLogger(t *testing.T) {
	dir := t.TempDir()
	logger, f, err := newLogger(dir, "test")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	a := newSlogAdapter(logger)
	a.Debug("debug msg")
	a.Info("info msg", "key", "value")
	a.Warn("warn msg")
	a.Error("error msg", "err", "boom")
}
