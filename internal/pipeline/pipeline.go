package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/petal/internal/config"
	"github.com/roach88/petal/internal/driver"
	"github.com/roach88/petal/internal/engine"
	"github.com/roach88/petal/internal/ir"
	"github.com/roach88/petal/internal/metrics"
	"github.com/roach88/petal/internal/module"
	"github.com/roach88/petal/internal/store"
)

// Interface is one run of the pipeline.
//
// Thread-safety: Open, Run and Close must be called from one goroutine.
type Interface struct {
	settings *config.Settings
	registry *module.Registry

	graph    driver.Graph
	closer   io.Closer // store, nil when the graph was injected
	logFile  *os.File
	queue    *engine.Queue
	driver   *driver.Driver
	sched    *engine.Scheduler
	listener *engine.Listener
}

// Option configures an Interface.
type Option func(*options)

type options struct {
	graph   driver.Graph
	backoff driver.Backoff
	gen     ir.IDGenerator
	console io.Writer
}

// WithGraph uses g instead of opening the configured SQLite store.
func WithGraph(g driver.Graph) Option {
	return func(o *options) {
		o.graph = g
	}
}

// WithBackoff replaces the driver's retry policy.
func WithBackoff(b driver.Backoff) Option {
	return func(o *options) {
		o.backoff = b
	}
}

// WithIDGenerator sets the batch id generator.
func WithIDGenerator(gen ir.IDGenerator) Option {
	return func(o *options) {
		o.gen = gen
	}
}

// WithConsole sets where log records go besides the log file.
// Default: os.Stderr.
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		o.console = w
	}
}

// Open prepares a run: optional clean of the working directories,
// logging, the graph store, and the scheduler wired to the listener.
func Open(settings *config.Settings, reg *module.Registry, opts ...Option) (*Interface, error) {
	o := options{console: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	root := settings.Pipeline.DataRoot
	if settings.Pipeline.Clean {
		if err := Clean(root); err != nil {
			return nil, err
		}
	} else if err := EnsureDirs(root); err != nil {
		return nil, err
	}

	logFile, err := setupLogging(root, settings.Pipeline.Level(), o.console)
	if err != nil {
		return nil, err
	}
	if settings.Pipeline.Clean {
		slog.Info("cleaned working directories", "data_root", root)
	}

	p := &Interface{
		settings: settings,
		registry: reg,
		graph:    o.graph,
		logFile:  logFile,
		queue:    engine.NewQueue(),
	}

	if p.graph == nil {
		st, err := openStore(settings.Store)
		if err != nil {
			logFile.Close()
			return nil, err
		}
		p.graph = st
		p.closer = st
	}

	var driverOpts []driver.Option
	if o.backoff != nil {
		driverOpts = append(driverOpts, driver.WithBackoff(o.backoff))
	}
	p.driver = driver.New(p.graph, driverOpts...)
	p.listener = engine.NewListener(p.driver, p.queue)

	var schedOpts []engine.SchedulerOption
	if o.gen != nil {
		schedOpts = append(schedOpts, engine.WithIDGenerator(o.gen))
	}
	p.sched = engine.NewScheduler(reg, p.driver.Reader, p.queue, schedulerConfig(settings), schedOpts...)

	return p, nil
}

func openStore(c config.StoreConfig) (*store.Store, error) {
	var opts []store.Option
	if c.Username != "" {
		opts = append(opts, store.WithAuth(c.Username, c.Password))
	}
	if c.Encrypted {
		slog.Warn("encrypted has no effect on a local graph store", "graph_server", c.GraphServer)
	}

	slog.Info("opening graph store", "path", c.GraphServer)
	st, err := store.Open(c.GraphServer, opts...)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	return st, nil
}

func schedulerConfig(s *config.Settings) engine.Config {
	c := engine.Config{
		PollInterval: s.Scheduler.PollInterval,
		PageSize:     s.Scheduler.PageSize,
		BatchSize:    s.Scheduler.BatchSize,
		ExitWhenDone: s.Scheduler.ExitWhenDone,
	}
	if s.Scheduler.SaveBatches {
		c.BatchDir = s.Pipeline.Dir("batches")
	}
	return c
}

func policy(s *config.Settings) engine.Policy {
	return engine.Policy{
		Whitelist: s.Pipeline.Whitelist,
		Blacklist: s.Pipeline.Blacklist,
	}
}

// Scheduler exposes the scheduler for status inspection.
func (p *Interface) Scheduler() *engine.Scheduler {
	return p.sched
}

// Listener exposes the driver listener for status inspection.
func (p *Interface) Listener() *engine.Listener {
	return p.listener
}

// Settings returns the settings currently in effect.
func (p *Interface) Settings() *config.Settings {
	return p.settings
}

// Run starts the listener and the scheduler and drives the control loop
// until ctx is cancelled or, with exit_when_done, all work is finished.
// The stop sequence always runs before Run returns. Cancellation is a
// graceful exit and returns nil.
func (p *Interface) Run(ctx context.Context) error {
	slog.Info("starting pipeline",
		"settings", p.settings.Path,
		"modules", p.registry.Len(),
	)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	// The listener outlives the interrupt so it can drain the queue.
	listenCtx, cancelListen := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelListen()

	if p.settings.Pipeline.Replay {
		dir := p.settings.Pipeline.Dir("batches")
		if _, err := engine.Replay(gctx, dir, p.queue); err != nil {
			slog.Error("batch replay failed", "dir", dir, "error", err)
		}
	}

	g.Go(func() error {
		err := p.listener.Run(listenCtx)
		if errors.Is(err, context.Canceled) {
			slog.Warn("listener stopped before the queue drained", "pending", p.queue.Pending())
			return nil
		}
		return err
	})

	if addr := p.settings.Pipeline.MetricsAddr; addr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, addr)
		})
	}

	var changes <-chan struct{}
	if p.settings.Pipeline.Watch && p.settings.Path != "" {
		ch, err := config.Watch(gctx, p.settings.Path)
		if err != nil {
			slog.Warn("settings file will only reload periodically", "error", err)
		} else {
			changes = ch
		}
	}

	p.sched.Start(gctx)
	deps := p.sched.Dependencies()
	slog.Info("module dependencies", "graph", deps.String())
	for _, c := range deps.Cycles() {
		slog.Warn("module dependency cycle", "path", c.String())
	}
	p.sched.Apply(policy(p.settings))

	loopErr := p.loop(gctx, changes)

	disarm := p.shutdown(cancelListen)
	cancelRun()

	err := g.Wait()
	disarm()
	slog.Info("pipeline stopped",
		"batches", p.listener.Stats().Batches,
		"nodes", p.listener.Stats().Nodes,
		"links", p.listener.Stats().Links,
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if loopErr != nil && !errors.Is(loopErr, context.Canceled) {
		return loopErr
	}
	return nil
}

// loop is the sleep/check/status/reload cycle.
func (p *Interface) loop(ctx context.Context, changes <-chan struct{}) error {
	cfg := p.settings.Pipeline
	ticker := time.NewTicker(cfg.SleepTime)
	defer ticker.Stop()

	lastStatus := time.Now()
	lastReload := lastStatus

	for {
		select {
		case <-ctx.Done():
			slog.Info("interrupting pipeline")
			return nil
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			p.reload("settings file changed")
			lastReload = time.Now()
			if next := p.settings.Pipeline; next.SleepTime != cfg.SleepTime {
				ticker.Reset(next.SleepTime)
			}
			cfg = p.settings.Pipeline
			continue
		case <-ticker.C:
		}

		if p.sched.Check() {
			slog.Info("all modules done")
			return nil
		}

		now := time.Now()
		if elapsed := now.Sub(lastStatus); elapsed >= cfg.StatusTime {
			p.sched.Status(elapsed)
			lastStatus = now
		}
		if now.Sub(lastReload) >= cfg.ReloadTime {
			p.reload("periodic")
			lastReload = now
			if next := p.settings.Pipeline; next.SleepTime != cfg.SleepTime {
				ticker.Reset(next.SleepTime)
			}
			cfg = p.settings.Pipeline
		}
	}
}

// reload re-reads the settings file and re-applies the scheduling policy.
// A broken file keeps the previous settings. Store settings and the data
// root only take effect on restart.
func (p *Interface) reload(reason string) {
	next := p.settings
	if p.settings.Path != "" {
		loaded, err := config.Load(p.settings.Path)
		if err != nil {
			slog.Error("settings reload failed, keeping previous settings", "reason", reason, "error", err)
		} else {
			if loaded.Store != p.settings.Store || loaded.Pipeline.DataRoot != p.settings.Pipeline.DataRoot {
				slog.Warn("store and data_root changes apply on restart")
				loaded.Store = p.settings.Store
				loaded.Pipeline.DataRoot = p.settings.Pipeline.DataRoot
			}
			next = loaded
		}
	}

	p.settings = next
	p.sched.SetConfig(schedulerConfig(next))
	scheduled, unscheduled := p.sched.Apply(policy(next))
	slog.Info("actively reloading settings",
		"reason", reason,
		"scheduled", len(scheduled),
		"unscheduled", len(unscheduled),
	)
}

// shutdown stops producers, closes the queue and bounds the listener's
// drain by the drain timeout. A zero timeout waits indefinitely. The
// returned func disarms the timeout.
func (p *Interface) shutdown(cancelListen context.CancelFunc) func() bool {
	slog.Info("stopping pipeline")
	p.sched.Stop()
	p.queue.Close()

	d := p.settings.Pipeline.DrainTimeout
	if d <= 0 {
		return func() bool { return false }
	}
	timer := time.AfterFunc(d, func() {
		slog.Warn("drain timeout reached", "timeout", d, "pending", p.queue.Pending())
		cancelListen()
	})
	return timer.Stop
}

// Close releases the store and the log file.
func (p *Interface) Close() error {
	var errs []error
	if p.closer != nil {
		if err := p.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close graph store: %w", err))
		}
	}
	if p.logFile != nil {
		if err := p.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}
	return errors.Join(errs...)
}
