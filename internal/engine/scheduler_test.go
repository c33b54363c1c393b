package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/petal/internal/ir"
	"github.com/roach88/petal/internal/module"
)

func TestPolicy_Allows(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		module string
		want   bool
	}{
		{"empty allows all", Policy{}, "a", true},
		{"blacklisted", Policy{Blacklist: []string{"a"}}, "a", false},
		{"not blacklisted", Policy{Blacklist: []string{"a"}}, "b", true},
		{"whitelisted", Policy{Whitelist: []string{"a"}}, "a", true},
		{"whitelist is exhaustive", Policy{Whitelist: []string{"a"}}, "b", false},
		{"whitelist wins over blacklist", Policy{Whitelist: []string{"a"}, Blacklist: []string{"a"}}, "a", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Allows(tt.module))
		})
	}
}

func TestScheduler_SourceRunsOnceThenIdles(t *testing.T) {
	src := sourceOf("articles", "Article", "a1", "a2")
	h := newHarness(t, Config{BatchSize: 10}, src)

	require.True(t, h.sched.Schedule("articles"))
	assert.False(t, h.sched.Schedule("articles"), "already scheduled")
	assert.False(t, h.sched.Schedule("unknown"))

	require.Eventually(t, h.stateIs("articles", StateIdle), waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, src.Calls(), "source runs once per scheduling")

	batches := h.drainQueue()
	require.Len(t, batches, 1)
	assert.Equal(t, "Article", batches[0].Label)
	require.Len(t, batches[0].Items, 2)
	assert.Equal(t, "a1", batches[0].Items[0].UUID)
	assert.Equal(t, "a2", batches[0].Items[1].UUID)
}

func TestScheduler_EligibilityWaitsForInput(t *testing.T) {
	idx := consumerOf("indexer", "Article", "HitList", false)
	h := newHarness(t, Config{}, idx)
	ctx := context.Background()

	ok, err := h.sched.Eligible(ctx, "indexer")
	require.NoError(t, err)
	assert.False(t, ok)

	require.True(t, h.sched.Schedule("indexer"))
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, idx.Calls(), "no input, no processing")
	assert.Equal(t, StateScheduled, h.sched.State("indexer"))

	h.seed(t, "Article", "a1")
	ok, err = h.sched.Eligible(ctx, "indexer")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Eventually(t, func() bool { return idx.Calls() == 1 }, waitFor, tick)
	require.Eventually(t, h.stateIs("indexer", StateIdle), waitFor, tick)
	assert.Equal(t, []string{"a1"}, idx.Seen())
}

func TestScheduler_SourceIsAlwaysEligible(t *testing.T) {
	h := newHarness(t, Config{}, sourceOf("articles", "Article"))
	ok, err := h.sched.Eligible(context.Background(), "articles")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestScheduler_BatchesBoundedBySize(t *testing.T) {
	idx := consumerOf("indexer", "Article", "HitList", false)
	h := newHarness(t, Config{BatchSize: 2}, idx)
	h.seed(t, "Article", "a1", "a2", "a3")

	require.True(t, h.sched.Schedule("indexer"))
	require.Eventually(t, func() bool { return h.queue.Len() == 2 }, waitFor, tick)

	batches := h.drainQueue()
	require.Len(t, batches, 2)
	assert.Equal(t, 2, batches[0].Len())
	assert.Equal(t, 1, batches[1].Len())
	assert.Equal(t, "h-a1", batches[0].Items[0].UUID)
	assert.Equal(t, "h-a2", batches[0].Items[1].UUID)
	assert.Equal(t, "h-a3", batches[1].Items[0].UUID)
	assert.NotEqual(t, batches[0].UUID, batches[1].UUID)
}

func TestScheduler_PagedConsumption(t *testing.T) {
	idx := consumerOf("geometry", "Article", "Geometry", true)
	h := newHarness(t, Config{PageSize: 2}, idx)
	h.seed(t, "Article", "a1", "a2", "a3", "a4", "a5")

	require.True(t, h.sched.Schedule("geometry"))
	require.Eventually(t, func() bool { return idx.Calls() == 5 }, waitFor, tick)
	assert.Equal(t, []string{"a1", "a2", "a3", "a4", "a5"}, idx.Seen())
}

func TestScheduler_ResumesAfterCursor(t *testing.T) {
	idx := consumerOf("indexer", "Article", "HitList", false)
	h := newHarness(t, Config{}, idx)
	h.seed(t, "Article", "a1", "a2")

	require.True(t, h.sched.Schedule("indexer"))
	require.Eventually(t, h.stateIs("indexer", StateIdle), waitFor, tick)

	require.True(t, h.sched.Unschedule("indexer"))
	assert.Equal(t, StateUnscheduled, h.sched.State("indexer"))
	assert.False(t, h.sched.Unschedule("indexer"))

	h.seed(t, "Article", "a3")
	require.Eventually(t, func() bool { return h.sched.Schedule("indexer") }, waitFor, tick)
	require.Eventually(t, func() bool { return idx.Calls() == 3 }, waitFor, tick)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"a1", "a2", "a3"}, idx.Seen(), "no record is processed twice")
}

func TestScheduler_ApplyBlacklistLeavesOthersAlone(t *testing.T) {
	a := sourceOf("a", "A", "a1")
	b := sourceOf("b", "B", "b1")
	h := newHarness(t, Config{}, a, b)

	scheduled, unscheduled := h.sched.Apply(Policy{})
	assert.Equal(t, []string{"a", "b"}, scheduled)
	assert.Empty(t, unscheduled)
	require.Eventually(t, h.stateIs("a", StateIdle), waitFor, tick)
	require.Eventually(t, h.stateIs("b", StateIdle), waitFor, tick)

	scheduled, unscheduled = h.sched.Apply(Policy{Blacklist: []string{"b"}})
	assert.Empty(t, scheduled)
	assert.Equal(t, []string{"b"}, unscheduled)
	assert.Equal(t, StateUnscheduled, h.sched.State("b"))
	assert.Equal(t, StateIdle, h.sched.State("a"), "a is untouched")
	assert.Equal(t, 1, a.Calls(), "a was not restarted")

	require.Eventually(t, func() bool {
		s, _ := h.sched.Apply(Policy{})
		return len(s) == 1
	}, waitFor, tick)
	require.Eventually(t, h.stateIs("b", StateIdle), waitFor, tick)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 2, b.Calls())
}

func TestScheduler_ApplyWhitelist(t *testing.T) {
	h := newHarness(t, Config{}, sourceOf("a", "A"), sourceOf("b", "B"), sourceOf("c", "C"))

	scheduled, _ := h.sched.Apply(Policy{Whitelist: []string{"b"}})
	assert.Equal(t, []string{"b"}, scheduled)
	assert.Equal(t, StateUnscheduled, h.sched.State("a"))
	assert.Equal(t, StateUnscheduled, h.sched.State("c"))
	assert.NotEqual(t, StateUnscheduled, h.sched.State("b"))
}

func TestScheduler_FaultIsIsolated(t *testing.T) {
	boom := errors.New("model exploded")
	bad := &fakeModule{Base: module.NewBase(module.Spec{Name: "bad", OutLabel: "X"})}
	bad.fn = func(*ir.Record) ([]ir.Transaction, error) { return nil, boom }
	good := sourceOf("good", "Article", "a1")

	h := newHarness(t, Config{}, bad, good)
	h.sched.Apply(Policy{})

	require.Eventually(t, func() bool {
		for _, st := range h.sched.Snapshot() {
			if st.Name == "bad" {
				return st.Faults == 1 && st.State == StateUnscheduled
			}
		}
		return false
	}, waitFor, tick)
	require.Eventually(t, h.stateIs("good", StateIdle), waitFor, tick)

	var badStatus ModuleStatus
	for _, st := range h.sched.Snapshot() {
		if st.Name == "bad" {
			badStatus = st
		}
	}
	assert.Contains(t, badStatus.LastError, "model exploded")
	assert.Contains(t, badStatus.LastError, string(PhaseProcess))

	// The next reload restarts the faulted module only.
	scheduled, _ := h.sched.Apply(Policy{})
	assert.Equal(t, []string{"bad"}, scheduled)
	require.Eventually(t, func() bool { return bad.Calls() == 2 }, waitFor, tick)
	assert.Equal(t, 1, good.Calls())
}

func TestScheduler_PanicIsCaught(t *testing.T) {
	p := &fakeModule{Base: module.NewBase(module.Spec{Name: "panicky", OutLabel: "X"})}
	p.fn = func(*ir.Record) ([]ir.Transaction, error) { panic("index out of range") }

	h := newHarness(t, Config{}, p)
	require.True(t, h.sched.Schedule("panicky"))

	require.Eventually(t, func() bool {
		snap := h.sched.Snapshot()
		return len(snap) == 1 && snap[0].Faults == 1
	}, waitFor, tick)
	snap := h.sched.Snapshot()
	assert.Equal(t, StateUnscheduled, snap[0].State)
	assert.Contains(t, snap[0].LastError, "module panicked")
	assert.Contains(t, snap[0].LastError, string(PhasePanic))
}

func TestScheduler_FaultDiscardsPartialItem(t *testing.T) {
	m := &fakeModule{Base: module.NewBase(module.Spec{Name: "m", InLabel: "Article", OutLabel: "Y"})}
	m.fn = func(prev *ir.Record) ([]ir.Transaction, error) {
		if prev.UUID == "a2" {
			return nil, errors.New("bad record")
		}
		return []ir.Transaction{m.DefaultTransaction(prev, "y-"+prev.UUID, map[string]any{})}, nil
	}
	h := newHarness(t, Config{}, m)
	h.seed(t, "Article", "a1", "a2")

	require.True(t, h.sched.Schedule("m"))
	require.Eventually(t, h.stateIs("m", StateUnscheduled), waitFor, tick)
	require.Eventually(t, func() bool { return h.queue.Len() == 1 }, waitFor, tick)

	batches := h.drainQueue()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Items, 1, "completed items are flushed")
	assert.Equal(t, "y-a1", batches[0].Items[0].UUID)

	snap := h.sched.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(1), snap[0].Items)
}

func TestScheduler_CheckNeverTrueForService(t *testing.T) {
	h := newHarness(t, Config{}, sourceOf("a", "A"))
	h.sched.Apply(Policy{})
	require.Eventually(t, h.stateIs("a", StateIdle), waitFor, tick)
	h.drainQueue()
	assert.False(t, h.sched.Check())
}

func TestScheduler_CheckEndToEnd(t *testing.T) {
	src := sourceOf("articles", "Article", "a1")
	idx := consumerOf("indexer", "Article", "HitList", false)
	h := newHarness(t, Config{ExitWhenDone: true}, src, idx)
	h.startListener(t)

	h.sched.Apply(Policy{})
	require.Eventually(t, h.sched.Check, waitFor, tick)

	assert.Equal(t, 1, h.graph.NodeCount("Article"))
	assert.Equal(t, 1, h.graph.NodeCount("HitList"))
	assert.Equal(t, 2, h.graph.NodeCount(ir.ProvenanceLabel))
	assert.Len(t, h.graph.Links(), 2)
}

func TestScheduler_StopIsFinal(t *testing.T) {
	h := newHarness(t, Config{}, sourceOf("a", "A", "a1"))
	require.True(t, h.sched.Schedule("a"))
	require.Eventually(t, h.stateIs("a", StateIdle), waitFor, tick)

	h.sched.Stop()
	assert.Equal(t, StateUnscheduled, h.sched.State("a"))
	assert.False(t, h.sched.Schedule("a"))
}

func TestScheduler_StatusAndConfig(t *testing.T) {
	h := newHarness(t, Config{}, sourceOf("a", "A", "a1"), consumerOf("b", "A", "B", false))
	h.sched.SetConfig(Config{BatchSize: 7})
	cfg := h.sched.config()
	assert.Equal(t, 7, cfg.BatchSize)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)

	h.sched.Status(time.Second)
	snap := h.sched.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Name)
	assert.Equal(t, StateUnscheduled, snap[0].State)
	assert.Equal(t, []string{"a"}, h.sched.Dependencies().Upstream("b"))
}
