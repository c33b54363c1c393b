package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/petal/internal/ir"
	"github.com/roach88/petal/internal/metrics"
)

// work is the goroutine body of one scheduled module.
func (s *Scheduler) work(e *entry, run *workerRun) {
	defer s.wg.Done()
	defer close(run.done)

	err := s.drive(run.ctx, e, run)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		e.faults++
		e.lastErr = err
		metrics.ModuleFaults.WithLabelValues(e.spec.Name).Inc()
		slog.Error("module fault, unscheduled until next reload",
			"module", e.spec.Name,
			"error", err,
		)
	}
	if e.run == run {
		e.run = nil
		setStateLocked(e, StateUnscheduled)
	}
	run.cancel()
}

// drive runs the module until its context ends or it faults.
// A nil return means the worker was asked to stop.
func (s *Scheduler) drive(ctx context.Context, e *entry, run *workerRun) error {
	b := &batcher{s: s, e: e}
	defer b.flush()

	if e.spec.IsSource() {
		s.transition(e, run, StateRunning)
		txs, err := s.processItem(ctx, e, nil)
		if err != nil {
			return err
		}
		b.add(txs)
		b.flush()
		s.advance(e, 0, len(txs))
		s.transition(e, run, StateIdle)
		<-ctx.Done()
		return nil
	}

	for ctx.Err() == nil {
		cfg := s.config()

		ok, err := s.eligible(ctx, e.spec)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &ModuleError{Module: e.spec.Name, Phase: PhaseEligibility, Err: err}
		}
		if !ok {
			sleepCtx(ctx, cfg.PollInterval)
			continue
		}

		seen := s.queue.Completed()
		limit := 0
		if e.spec.Paged {
			limit = cfg.PageSize
		}
		records, err := s.reader.Page(ctx, e.spec.InLabel, s.cursor(e), limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &ModuleError{Module: e.spec.Name, Phase: PhaseRead, Err: err}
		}

		if len(records) == 0 {
			b.flush()
			s.markIdle(e, run, seen)
			sleepCtx(ctx, cfg.PollInterval)
			continue
		}

		s.transition(e, run, StateRunning)
		for i := range records {
			rec := records[i]
			txs, err := s.processItem(ctx, e, &rec)
			if err != nil {
				return err
			}
			b.add(txs)
			s.advance(e, rec.Seq, len(txs))
			if ctx.Err() != nil {
				return nil
			}
		}
		b.flush()
	}
	return nil
}

// processItem collects every transaction Process yields for one record.
// The item is never cancelled midway: Process sees a context detached from
// the worker's stop signal. Errors and panics become a ModuleError and the
// partial output of the item is discarded.
func (s *Scheduler) processItem(ctx context.Context, e *entry, rec *ir.Record) (txs []ir.Transaction, err error) {
	recID := ""
	if rec != nil {
		recID = rec.UUID
	}

	defer func() {
		if r := recover(); r != nil {
			txs = nil
			err = &ModuleError{
				Module: e.spec.Name,
				Phase:  PhasePanic,
				Record: recID,
				Err:    fmt.Errorf("%w: %v", ErrPanic, r),
			}
		}
	}()

	for tx, perr := range e.mod.Process(context.WithoutCancel(ctx), rec) {
		if perr != nil {
			return nil, &ModuleError{Module: e.spec.Name, Phase: PhaseProcess, Record: recID, Err: perr}
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (s *Scheduler) cursor(e *entry) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.cursor
}

// advance records one fully consumed item.
func (s *Scheduler) advance(e *entry, seq int64, produced int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq > e.cursor {
		e.cursor = seq
	}
	e.items++
	e.txs += int64(produced)
	metrics.ModuleItems.WithLabelValues(e.spec.Name).Inc()
	metrics.ModuleTransactions.WithLabelValues(e.spec.Name).Add(float64(produced))
}

// transition changes state only while run is still the module's current,
// unstopped worker.
func (s *Scheduler) transition(e *entry, run *workerRun, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.run == run && run.ctx.Err() == nil {
		setStateLocked(e, st)
	}
}

func (s *Scheduler) markIdle(e *entry, run *workerRun, seen int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.run == run && run.ctx.Err() == nil {
		e.idleAt = seen
		setStateLocked(e, StateIdle)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// batcher accumulates one module's transactions into bounded batches.
// It is owned by a single worker goroutine.
type batcher struct {
	s   *Scheduler
	e   *entry
	cur *ir.Batch
}

func (b *batcher) add(txs []ir.Transaction) {
	size := b.s.config().BatchSize
	for _, tx := range txs {
		if b.cur == nil {
			b.cur = ir.NewBatch(b.e.spec.OutLabel, b.s.gen)
		}
		b.cur.Add(tx)
		if b.cur.Len() >= size {
			b.flush()
		}
	}
}

// flush materializes and queues the current batch, if any.
func (b *batcher) flush() {
	if b.cur == nil || b.cur.Len() == 0 {
		return
	}
	batch := b.cur
	b.cur = nil

	if dir := b.s.config().BatchDir; dir != "" {
		if _, err := WriteBatch(dir, batch); err != nil {
			slog.Warn("failed to materialize batch",
				"module", b.e.spec.Name,
				"batch", batch.UUID,
				"error", err,
			)
		}
	}

	if !b.s.queue.Push(batch) {
		slog.Warn("queue closed, dropping batch",
			"module", b.e.spec.Name,
			"label", batch.Label,
			"batch", batch.UUID,
			"items", batch.Len(),
		)
		return
	}

	b.s.mu.Lock()
	b.e.batches++
	b.s.mu.Unlock()

	slog.Debug("batch queued",
		"module", b.e.spec.Name,
		"label", batch.Label,
		"batch", batch.UUID,
		"items", batch.Len(),
	)
}
