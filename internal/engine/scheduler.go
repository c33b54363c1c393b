package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/petal/internal/driver"
	"github.com/roach88/petal/internal/ir"
	"github.com/roach88/petal/internal/metrics"
	"github.com/roach88/petal/internal/module"
)

// State is a module's position in the scheduler lifecycle:
//
//	unscheduled -> scheduled -> running <-> idle -> unscheduled
type State int

const (
	// StateUnscheduled means no worker runs the module.
	StateUnscheduled State = iota
	// StateScheduled means a worker exists and waits for eligible input.
	StateScheduled
	// StateRunning means the worker is processing input items.
	StateRunning
	// StateIdle means the worker caught up and waits for more input.
	StateIdle
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUnscheduled:
		return "unscheduled"
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Config holds the scheduler tunables.
type Config struct {
	// PollInterval is how long a worker waits before re-checking
	// eligibility or looking for new input.
	PollInterval time.Duration

	// PageSize bounds each read for paged modules.
	PageSize int

	// BatchSize bounds the number of transactions per batch.
	BatchSize int

	// ExitWhenDone lets Check report completion. Without it the pipeline
	// is a long-running service and Check is always false.
	ExitWhenDone bool

	// BatchDir, if set, receives a JSON copy of every batch before it is
	// queued.
	BatchDir string
}

// Default scheduler tunables.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultPageSize     = 100
	DefaultBatchSize    = 100
)

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		PageSize:     DefaultPageSize,
		BatchSize:    DefaultBatchSize,
	}
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// Policy filters which modules may be scheduled. A non-empty Whitelist is
// exhaustive; otherwise Blacklist excludes by name.
type Policy struct {
	Whitelist []string
	Blacklist []string
}

// Allows reports whether name passes the policy.
func (p Policy) Allows(name string) bool {
	if len(p.Whitelist) > 0 {
		return slices.Contains(p.Whitelist, name)
	}
	return !slices.Contains(p.Blacklist, name)
}

// ModuleStatus is a point-in-time view of one module.
type ModuleStatus struct {
	Name         string
	State        State
	Cursor       int64
	Items        int64
	Transactions int64
	Batches      int64
	Faults       int64
	LastError    string
}

type entry struct {
	mod  module.Module
	spec module.Spec

	state   State
	cursor  int64 // seq of the last fully consumed input record
	idleAt  int64 // queue.Completed() observed before the last empty read
	items   int64
	txs     int64
	batches int64
	faults  int64
	lastErr error

	reported int64 // items at the last Status call

	run *workerRun // nil when no goroutine is attached
}

type workerRun struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns module workers.
//
// Thread-safety: every method is safe for concurrent use. Each scheduled
// module runs in its own goroutine; workers share nothing but the queue.
type Scheduler struct {
	registry *module.Registry
	reader   *driver.Reader
	queue    *Queue
	gen      ir.IDGenerator

	mu      sync.Mutex
	cfg     Config
	deps    *Dependencies
	entries map[string]*entry
	base    context.Context
	stopped bool
	wg      sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithIDGenerator sets the batch id generator. Default: UUIDv7Generator.
func WithIDGenerator(gen ir.IDGenerator) SchedulerOption {
	return func(s *Scheduler) {
		s.gen = gen
	}
}

// NewScheduler creates a scheduler over the modules in reg. Workers read
// input through reader and push batches onto q.
func NewScheduler(reg *module.Registry, reader *driver.Reader, q *Queue, cfg Config, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		registry: reg,
		reader:   reader,
		queue:    q,
		gen:      ir.UUIDv7Generator{},
		cfg:      cfg.withDefaults(),
		entries:  make(map[string]*entry),
		base:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.deps = Resolve(reg.Specs())
	return s
}

// Start sets the parent context of every worker started afterwards.
// Cancelling ctx unschedules all workers.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = ctx
}

// SetConfig replaces the tunables. Running workers pick up the new values
// on their next read.
func (s *Scheduler) SetConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.withDefaults()
}

func (s *Scheduler) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Dependencies returns the graph resolved by the last Apply.
func (s *Scheduler) Dependencies() *Dependencies {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deps
}

// entryLocked returns the entry for name, creating it from the registry.
// Must be called with mu held.
func (s *Scheduler) entryLocked(name string) (*entry, bool) {
	if e, ok := s.entries[name]; ok {
		return e, true
	}
	m, ok := s.registry.Get(name)
	if !ok {
		return nil, false
	}
	e := &entry{mod: m, spec: m.Spec(), idleAt: -1}
	s.entries[name] = e
	return e, true
}

// setStateLocked must be called with mu held.
func setStateLocked(e *entry, st State) {
	e.state = st
	metrics.ModuleState.WithLabelValues(e.spec.Name).Set(float64(st))
}

// Schedule starts a worker for name. Returns false if the module is
// unknown, already scheduled, still finishing a previous run, or the
// scheduler is stopped.
func (s *Scheduler) Schedule(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	e, ok := s.entryLocked(name)
	if !ok || e.run != nil {
		return false
	}

	ctx, cancel := context.WithCancel(s.base)
	run := &workerRun{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	e.run = run
	e.idleAt = -1
	setStateLocked(e, StateScheduled)

	s.wg.Add(1)
	go s.work(e, run)

	slog.Info("module scheduled", "module", name, "in_label", e.spec.InLabel, "out_label", e.spec.OutLabel)
	return true
}

// Unschedule signals name's worker to stop after its current input item.
// The module is unscheduled immediately; its worker flushes and exits in
// the background. Returns false if the module was not scheduled.
func (s *Scheduler) Unschedule(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok || e.run == nil || e.state == StateUnscheduled {
		return false
	}
	e.run.cancel()
	setStateLocked(e, StateUnscheduled)

	slog.Info("module unscheduled", "module", name)
	return true
}

// Apply re-resolves dependencies and reconciles scheduled modules with p.
// Allowed modules that are not scheduled (including faulted ones) are
// scheduled; disallowed ones are unscheduled. Other modules are untouched.
func (s *Scheduler) Apply(p Policy) (scheduled, unscheduled []string) {
	deps := Resolve(s.registry.Specs())
	s.mu.Lock()
	s.deps = deps
	s.mu.Unlock()

	for _, name := range s.registry.Names() {
		if p.Allows(name) {
			if s.Schedule(name) {
				scheduled = append(scheduled, name)
			}
			continue
		}
		if s.Unschedule(name) {
			unscheduled = append(unscheduled, name)
		}
	}

	if len(scheduled) > 0 || len(unscheduled) > 0 {
		slog.Info("schedule applied", "scheduled", scheduled, "unscheduled", unscheduled)
	}
	return scheduled, unscheduled
}

// State returns name's current state.
func (s *Scheduler) State(name string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		return e.state
	}
	return StateUnscheduled
}

// Eligible reports whether name may consume input. Source modules are
// always eligible; others once at least one entity of their input label
// exists.
func (s *Scheduler) Eligible(ctx context.Context, name string) (bool, error) {
	m, ok := s.registry.Get(name)
	if !ok {
		return false, nil
	}
	return s.eligible(ctx, m.Spec())
}

func (s *Scheduler) eligible(ctx context.Context, spec module.Spec) (bool, error) {
	if spec.IsSource() {
		return true, nil
	}
	n, err := s.reader.Count(ctx, spec.InLabel)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Check reports whether the pipeline has no more work. It is false unless
// ExitWhenDone is set. Otherwise every active module must be idle, with
// consumers having read the store after the last batch landed, and the
// queue must be empty.
func (s *Scheduler) Check() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.ExitWhenDone {
		return false
	}
	if s.queue.Pending() > 0 {
		return false
	}
	completed := s.queue.Completed()
	for _, e := range s.entries {
		if e.run == nil || e.state == StateUnscheduled {
			continue
		}
		if e.state != StateIdle {
			return false
		}
		if !e.spec.IsSource() && e.idleAt != completed {
			return false
		}
	}
	return true
}

// Snapshot returns the status of every registered module, sorted by name.
func (s *Scheduler) Snapshot() []ModuleStatus {
	names := s.registry.Names()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ModuleStatus, 0, len(names))
	for _, name := range names {
		e, ok := s.entryLocked(name)
		if !ok {
			continue
		}
		st := ModuleStatus{
			Name:         name,
			State:        e.state,
			Cursor:       e.cursor,
			Items:        e.items,
			Transactions: e.txs,
			Batches:      e.batches,
			Faults:       e.faults,
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}

// Status logs per-module progress over the last interval d.
func (s *Scheduler) Status(d time.Duration) {
	snapshot := s.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range snapshot {
		e := s.entries[st.Name]
		rate := 0.0
		if d > 0 {
			rate = float64(st.Items-e.reported) / d.Seconds()
		}
		e.reported = st.Items

		attrs := []any{
			"module", st.Name,
			"state", st.State.String(),
			"items", st.Items,
			"transactions", st.Transactions,
			"batches", st.Batches,
			"faults", st.Faults,
			"items_per_sec", rate,
		}
		if st.LastError != "" {
			attrs = append(attrs, "last_error", st.LastError)
		}
		slog.Info("module status", attrs...)
	}
	slog.Info("queue status", "pending", s.queue.Pending(), "completed", s.queue.Completed())
}

// Stop unschedules every module and waits for all workers to finish their
// in-flight item and flush their partial batch. The scheduler cannot be
// restarted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, e := range s.entries {
		if e.run != nil {
			e.run.cancel()
			setStateLocked(e, StateUnscheduled)
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("scheduler stopped")
}
