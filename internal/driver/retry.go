package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/petal/internal/metrics"
	"github.com/roach88/petal/internal/store"
)

// DefaultRetryInterval is the fixed wait between attempts against an
// unreachable store.
const DefaultRetryInterval = time.Second

// retryLogEvery limits how often a long outage is logged.
const retryLogEvery = 30

// Backoff decides how long to wait before the next attempt.
// Wait returns a non-nil error only when ctx ends first.
type Backoff interface {
	Wait(ctx context.Context, attempt int) error
}

// FixedBackoff waits the same Interval before every retry.
type FixedBackoff struct {
	Interval time.Duration
}

// Wait blocks for Interval or until ctx is done.
func (b FixedBackoff) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoBackoff retries immediately. Intended for tests.
type NoBackoff struct{}

// Wait returns immediately unless ctx is already done.
func (NoBackoff) Wait(ctx context.Context, attempt int) error {
	return ctx.Err()
}

// Do runs fn until it succeeds or fails with an error that is not a
// transient store outage. There is no attempt limit.
func Do[T any](ctx context.Context, b Backoff, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !store.IsUnavailable(err) {
			return zero, err
		}

		metrics.StoreRetries.WithLabelValues(op).Inc()
		if attempt == 1 || attempt%retryLogEvery == 0 {
			slog.Warn("cannot reach graph store, retrying",
				"op", op,
				"attempt", attempt,
				"error", err,
			)
		}

		if werr := b.Wait(ctx, attempt); werr != nil {
			return zero, fmt.Errorf("%s: gave up after %d attempts: %w", op, attempt, werr)
		}
	}
}

// doErr is Do for operations that return only an error.
func doErr(ctx context.Context, b Backoff, op string, fn func(context.Context) error) error {
	_, err := Do(ctx, b, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
