package memory

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/adrianwedd/ltm-service/internal/model"
)

const (
	backendMaxAttempts   = 3
	backendRetryInterval = 500 * time.Millisecond

	// DefaultBackendTimeout bounds a single backend attempt.
	DefaultBackendTimeout = 5 * time.Second
)

// withBackendRetry runs op under the service-wide retry envelope for
// transient backend failures: a per-attempt timeout, delays of 0.5·2^i
// seconds, 3 attempts, aborted by cancellation of the request context.
// Exhaustion surfaces as BACKEND_UNAVAILABLE.
func withBackendRetry(ctx context.Context, backend string, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = DefaultBackendTimeout
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = backendRetryInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return op(attemptCtx)
	}
	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(b, backendMaxAttempts-1), ctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &model.BackendUnavailableError{Backend: backend, Err: err}
}
