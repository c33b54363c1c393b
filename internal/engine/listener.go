package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/petal/internal/driver"
	"github.com/roach88/petal/internal/ir"
	"github.com/roach88/petal/internal/metrics"
)

// DefaultReportInterval is how often the listener logs its throughput.
const DefaultReportInterval = 30 * time.Second

// ListenerStats summarizes what the listener has persisted.
type ListenerStats struct {
	Batches int64
	Skipped int64 // transactions rejected or failed, not retried
	Nodes   int
	Links   int
	Raw     int
	Elapsed time.Duration
}

// Rate returns new nodes plus links per second.
func (s ListenerStats) Rate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Nodes+s.Links) / s.Elapsed.Seconds()
}

// Listener is the single consumer of the batch queue and the only owner
// of the Driver.
//
// CRITICAL: Run must be called from exactly one goroutine.
type Listener struct {
	driver         *driver.Driver
	queue          *Queue
	reportInterval time.Duration

	mu    sync.Mutex
	stats ListenerStats
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithReportInterval sets how often throughput is logged.
func WithReportInterval(d time.Duration) ListenerOption {
	return func(l *Listener) {
		l.reportInterval = d
	}
}

// NewListener creates a listener draining q into d.
func NewListener(d *driver.Driver, q *Queue, opts ...ListenerOption) *Listener {
	l := &Listener{
		driver:         d,
		queue:          q,
		reportInterval: DefaultReportInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run consumes batches in FIFO order until the queue is closed and
// drained (returns nil) or ctx is cancelled (returns ctx.Err()).
//
// ERROR HANDLING: a transaction that fails for any reason other than
// cancellation is logged with its batch label and skipped; the rest of
// the batch is still written. Store outages never surface here because
// the driver retries them.
func (l *Listener) Run(ctx context.Context) error {
	slog.Info("driver listener starting")
	start := time.Now()
	lastReport := start

	for {
		env, ok := l.queue.TryPop()
		if ok {
			err := l.consume(ctx, env.Batch)
			l.queue.Done()
			l.snapshot(start)
			if err != nil {
				return err
			}
			if time.Since(lastReport) >= l.reportInterval {
				l.report()
				lastReport = time.Now()
			}
			continue
		}

		if l.queue.Drained() {
			l.snapshot(start)
			l.report()
			slog.Info("driver listener drained")
			return nil
		}

		select {
		case <-ctx.Done():
			l.snapshot(start)
			slog.Info("driver listener cancelled", "pending", l.queue.Pending())
			return ctx.Err()
		case <-l.queue.Wait():
		}
	}
}

// consume writes every item of b in order, then its provenance record.
func (l *Listener) consume(ctx context.Context, b *ir.Batch) error {
	start := time.Now()
	added := 0

	for i, tx := range b.Items {
		ok, err := l.driver.Run(ctx, tx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return err
			}
			l.skip(b, i, err)
			continue
		}
		if ok {
			added++
		}
	}

	if _, err := l.driver.Run(ctx, b.Provenance()); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		slog.Error("failed to record batch provenance",
			"label", b.Label,
			"batch", b.UUID,
			"error", err,
		)
	}

	duration := time.Since(start)
	metrics.BatchesConsumed.WithLabelValues(b.Label).Inc()
	metrics.BatchDuration.WithLabelValues(b.Label).Observe(duration.Seconds())

	l.mu.Lock()
	l.stats.Batches++
	l.mu.Unlock()

	slog.Debug("batch consumed",
		"label", b.Label,
		"batch", b.UUID,
		"items", b.Len(),
		"added", added,
		"duration", duration,
	)
	return nil
}

func (l *Listener) skip(b *ir.Batch, index int, err error) {
	l.mu.Lock()
	l.stats.Skipped++
	l.mu.Unlock()

	level := slog.LevelError
	if errors.Is(err, ir.ErrInvalidTransaction) {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "transaction skipped",
		"label", b.Label,
		"batch", b.UUID,
		"index", index,
		"error", err,
	)
}

// snapshot copies the driver counters. Only the Run goroutine reads the
// driver.
func (l *Listener) snapshot(start time.Time) {
	ds := l.driver.Stats()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Nodes = ds.Nodes
	l.stats.Links = ds.Links
	l.stats.Raw = ds.Raw
	l.stats.Elapsed = time.Since(start)
}

func (l *Listener) report() {
	st := l.Stats()
	slog.Info("driver progress",
		"batches", st.Batches,
		"nodes", st.Nodes,
		"links", st.Links,
		"skipped", st.Skipped,
		"per_sec", st.Rate(),
		"duration", st.Elapsed,
	)
}

// Stats returns the latest counters. Safe from any goroutine.
func (l *Listener) Stats() ListenerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
