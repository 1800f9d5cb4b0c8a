package retry

import (
	"context"
	"errors"
	"net"
	"testing"

	"photoframe/internal/core"
)

func TestDefaultClassifier(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network error", &core.NetworkError{Op: "x", Err: errors.New("boom")}, true},
		{"dns error", &net.DNSError{Err: "no such host"}, true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"auth error", &core.AuthError{Provider: "x", Msg: "denied"}, false},
		{"not found", &core.NotFoundError{PhotoID: "p1"}, false},
		{"generic error", errors.New("unclassified"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DefaultClassifier(tc.err); got != tc.want {
				t.Errorf("DefaultClassifier(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestDo_succeedsOnFirstAttemptWithoutDelay(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultClassifier, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestDo_doesNotRetryNonRetryableErrors(t *testing.T) {
	calls := 0
	wantErr := &core.AuthError{Provider: "x", Msg: "denied"}

	err := Do(context.Background(), DefaultClassifier, func(ctx context.Context) error {
		calls++
		return wantErr
	})

	if !errors.Is(err, wantErr) && err.Error() != wantErr.Error() {
		t.Errorf("Do() error = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1 (non-retryable errors must fail fast)", calls)
	}
}

func TestDo_usesCustomClassifier(t *testing.T) {
	calls := 0
	sentinel := errors.New("custom-retryable")

	err := Do(context.Background(), func(err error) bool { return false }, func(ctx context.Context) error {
		calls++
		return sentinel
	})

	if err == nil {
		t.Fatal("Do() expected an error")
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1 when the classifier says don't retry", calls)
	}
}
