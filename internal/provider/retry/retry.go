// Package retry implements the Provider retry policy of §4.1: transient
// network failures and server-side 5xx/rate-limit signals are retried up
// to 3 times with exponential back-off starting at 2s and capped at 60s;
// auth failures, not-found, and permission-denied fail fast.
package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"photoframe/internal/core"
)

// maxRetries is how many times a retryable failure is retried after the
// first attempt.
const maxRetries = 3

// Classifier decides whether an error from a Provider call should be
// retried. Providers supply their own (e.g. checking an HTTP status code
// embedded in the error) via the classify parameter to Do.
type Classifier func(err error) bool

// DefaultClassifier retries on *core.NetworkError and on the network-level
// errors the standard library surfaces (connection reset, DNS, timeout);
// everything else — notably *core.AuthError and *core.NotFoundError — is
// treated as non-retryable.
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	var netErr *core.NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var authErr *core.AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var notFound *core.NotFoundError
	if errors.As(err, &notFound) {
		return false
	}
	return false
}

// Do runs fn, retrying per the policy above. The context governs the
// overall deadline; each retry respects ctx cancellation between attempts.
func Do(ctx context.Context, classify Classifier, fn func(ctx context.Context) error) error {
	if classify == nil {
		classify = DefaultClassifier
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 60 * time.Second
	bo := backoff.WithMaxRetries(b, maxRetries)
	bo = backoff.WithContext(bo, ctx)

	return backoff.Retry(func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !classify(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}
