package service

import (
	"context"
	"errors"
	"time"

	"github.com/AdamBeresnev/rack-ladder/internal/metrics"
	"github.com/AdamBeresnev/rack-ladder/internal/store"
	"github.com/cenkalti/backoff/v4"
)

// retrier reruns a whole transaction when it loses an optimistic lock race.
// Any other error, or an error already marked permanent, stops it at once.
type retrier struct {
	maxRetries int
	metrics    *metrics.Metrics
}

func newRetrier(maxRetries int, m *metrics.Metrics) retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retrier{maxRetries: maxRetries, metrics: m}
}

func (r retrier) do(ctx context.Context, operation string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxRetries)), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			if errors.Is(permanent.Err, store.ErrConcurrentModification) {
				r.metrics.Conflict(operation)
			}
			return err
		}
		if errors.Is(err, store.ErrConcurrentModification) {
			r.metrics.Conflict(operation)
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}
