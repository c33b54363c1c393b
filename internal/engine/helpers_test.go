package engine

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/petal/internal/driver"
	"github.com/roach88/petal/internal/ir"
	"github.com/roach88/petal/internal/module"
	"github.com/roach88/petal/internal/testutil"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

// fakeModule produces transactions from fn and records every input it saw.
type fakeModule struct {
	module.Base
	fn func(prev *ir.Record) ([]ir.Transaction, error)

	mu   sync.Mutex
	seen []string
}

func (f *fakeModule) Process(ctx context.Context, prev *ir.Record) iter.Seq2[ir.Transaction, error] {
	f.mu.Lock()
	if prev != nil {
		f.seen = append(f.seen, prev.UUID)
	} else {
		f.seen = append(f.seen, "")
	}
	f.mu.Unlock()

	txs, err := f.fn(prev)
	if err != nil {
		return module.Fail(err)
	}
	return module.Yield(txs...)
}

func (f *fakeModule) Seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func (f *fakeModule) Calls() int {
	return len(f.Seen())
}

// sourceOf emits one entity per uuid on its single run.
func sourceOf(name, label string, uuids ...string) *fakeModule {
	m := &fakeModule{Base: module.NewBase(module.Spec{Name: name, OutLabel: label})}
	m.fn = func(*ir.Record) ([]ir.Transaction, error) {
		var txs []ir.Transaction
		for _, id := range uuids {
			txs = append(txs, m.DefaultTransaction(nil, id, map[string]any{"title": "T"}))
		}
		return txs, nil
	}
	return m
}

// consumerOf emits one linked entity per input record.
func consumerOf(name, in, out string, paged bool) *fakeModule {
	m := &fakeModule{Base: module.NewBase(module.Spec{
		Name:          name,
		InLabel:       in,
		OutLabel:      out,
		ConnectLabels: ir.Connect("hitlist", "hitlist"),
		Paged:         paged,
	})}
	m.fn = func(prev *ir.Record) ([]ir.Transaction, error) {
		return []ir.Transaction{
			m.DefaultTransaction(prev, "h-"+prev.UUID, map[string]any{"source": prev.UUID}),
		}, nil
	}
	return m
}

type harness struct {
	graph    *testutil.MemGraph
	driver   *driver.Driver
	queue    *Queue
	registry *module.Registry
	sched    *Scheduler
}

func newHarness(t *testing.T, cfg Config, mods ...module.Module) *harness {
	t.Helper()

	g := testutil.NewMemGraph()
	reg := module.NewRegistry()
	for _, m := range mods {
		require.NoError(t, reg.Register(m))
	}
	d := driver.New(g, driver.WithBackoff(driver.NoBackoff{}))
	q := NewQueue()

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	s := NewScheduler(reg, d.Reader, q, cfg)
	t.Cleanup(s.Stop)

	return &harness{graph: g, driver: d, queue: q, registry: reg, sched: s}
}

// startListener runs a listener until the test ends.
func (h *harness) startListener(t *testing.T) *Listener {
	t.Helper()
	l := NewListener(h.driver, h.queue)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

func (h *harness) seed(t *testing.T, label string, uuids ...string) {
	t.Helper()
	for _, id := range uuids {
		require.NoError(t, h.graph.MergeNode(context.Background(), label, id, map[string]any{"id": id}))
	}
}

func (h *harness) stateIs(name string, st State) func() bool {
	return func() bool { return h.sched.State(name) == st }
}

func (h *harness) drainQueue() []*ir.Batch {
	var out []*ir.Batch
	for {
		e, ok := h.queue.TryPop()
		if !ok {
			return out
		}
		h.queue.Done()
		out = append(out, e.Batch)
	}
}
