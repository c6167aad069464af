package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/logger"
)

// BackOffFactory creates a fresh backoff policy for one retried operation.
type BackOffFactory func() backoff.BackOff

// DefaultBackOff is exponential backoff starting at 500ms with jitter,
// capped at 10s between attempts.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// retryTransient runs op until it succeeds, fails with a non-transient
// error, or maxRetries retries have been spent.
func retryTransient[T any](
	ctx context.Context, newBackOff BackOffFactory, maxRetries int, name string, op func() (T, error),
) (T, error) {
	if newBackOff == nil {
		newBackOff = DefaultBackOff
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), uint64(maxRetries)), ctx)

	return backoff.RetryNotifyWithData(func() (T, error) {
		v, err := op()
		if err != nil && !domain.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy, func(err error, wait time.Duration) {
		logger.Debug("%s: retrying in %s after %v", name, wait, err)
	})
}
