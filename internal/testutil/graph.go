package testutil

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/roach88/petal/internal/ir"
	"github.com/roach88/petal/internal/store"
)

// Write is one observed mutation of a MemGraph, stamped with the logical
// clock at the moment it was applied.
type Write struct {
	Seq int64
	Op  string // "node", "link", "exec"
	Key string // uuid for nodes, "from->to:type" for links, query for exec
}

type memNode struct {
	label string
	data  map[string]any
	seq   int64
}

// MemGraph is an in-memory graph store double.
//
// It mirrors the merge semantics of store.Store (nodes keyed by uuid, links
// keyed by endpoints and type, relations require both endpoints) and adds:
//   - Writes: every applied mutation in order, with a monotonic seq
//   - SetDown / FailNext: simulated outages returning store.ErrUnavailable
//
// Thread-safety: all methods are safe for concurrent use.
type MemGraph struct {
	mu       sync.Mutex
	clock    *DeterministicClock
	nodes    map[string]*memNode
	links    map[store.Link]struct{}
	writes   []Write
	down     bool
	failNext int
	calls    int
}

// NewMemGraph creates an empty, reachable graph.
func NewMemGraph() *MemGraph {
	return &MemGraph{
		clock: NewDeterministicClock(),
		nodes: make(map[string]*memNode),
		links: make(map[store.Link]struct{}),
	}
}

// SetDown makes every call fail with store.ErrUnavailable until reset.
func (g *MemGraph) SetDown(down bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.down = down
}

// FailNext makes the next n calls fail with store.ErrUnavailable.
func (g *MemGraph) FailNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
}

// Calls returns how many calls reached the graph, including failed ones.
func (g *MemGraph) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// check must be called with mu held.
func (g *MemGraph) check() error {
	g.calls++
	if g.down {
		return fmt.Errorf("mem graph: %w", store.ErrUnavailable)
	}
	if g.failNext > 0 {
		g.failNext--
		return fmt.Errorf("mem graph: %w", store.ErrUnavailable)
	}
	return nil
}

// Exec records a raw query.
func (g *MemGraph) Exec(ctx context.Context, query string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(); err != nil {
		return err
	}
	g.writes = append(g.writes, Write{Seq: g.clock.Next(), Op: "exec", Key: query})
	return nil
}

// MergeNode upserts a node. An existing node keeps its seq.
func (g *MemGraph) MergeNode(ctx context.Context, label, uuid string, data map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(); err != nil {
		return err
	}
	seq := g.clock.Next()
	if n, ok := g.nodes[uuid]; ok {
		n.label = label
		n.data = maps.Clone(data)
	} else {
		g.nodes[uuid] = &memNode{label: label, data: maps.Clone(data), seq: seq}
	}
	g.writes = append(g.writes, Write{Seq: seq, Op: "node", Key: uuid})
	return nil
}

// MergeRelation upserts both directions of rel if both endpoints exist
// with the expected labels.
func (g *MemGraph) MergeRelation(ctx context.Context, rel store.Relation) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(); err != nil {
		return 0, err
	}
	from, ok := g.nodes[rel.FromUUID]
	if !ok || from.label != rel.FromLabel {
		return 0, nil
	}
	to, ok := g.nodes[rel.ToUUID]
	if !ok || to.label != rel.ToLabel {
		return 0, nil
	}

	var created int64
	for _, l := range []store.Link{
		{FromUUID: rel.FromUUID, ToUUID: rel.ToUUID, Type: rel.Forward},
		{FromUUID: rel.ToUUID, ToUUID: rel.FromUUID, Type: rel.Backward},
	} {
		if _, exists := g.links[l]; exists {
			continue
		}
		g.links[l] = struct{}{}
		created++
		g.writes = append(g.writes, Write{
			Seq: g.clock.Next(),
			Op:  "link",
			Key: fmt.Sprintf("%s->%s:%s", l.FromUUID, l.ToUUID, l.Type),
		})
	}
	return created, nil
}

// Get returns the node with uuid or an error wrapping store.ErrNotFound.
func (g *MemGraph) Get(ctx context.Context, uuid string) (ir.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(); err != nil {
		return ir.Record{}, err
	}
	n, ok := g.nodes[uuid]
	if !ok {
		return ir.Record{}, fmt.Errorf("uuid %s: %w", uuid, store.ErrNotFound)
	}
	return g.record(uuid, n), nil
}

// Count returns the number of nodes labelled label.
func (g *MemGraph) Count(ctx context.Context, label string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(); err != nil {
		return 0, err
	}
	var count int64
	for _, n := range g.nodes {
		if n.label == label {
			count++
		}
	}
	return count, nil
}

// Page returns nodes of label after the seq cursor, ordered by seq.
func (g *MemGraph) Page(ctx context.Context, label string, after int64, limit int) ([]ir.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(); err != nil {
		return nil, err
	}
	records := []ir.Record{}
	for uuid, n := range g.nodes {
		if n.label == label && n.seq > after {
			records = append(records, g.record(uuid, n))
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (g *MemGraph) record(uuid string, n *memNode) ir.Record {
	return ir.Record{UUID: uuid, Label: n.label, Data: maps.Clone(n.data), Seq: n.seq}
}

// Writes returns a copy of the applied mutations in order.
func (g *MemGraph) Writes() []Write {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Write(nil), g.writes...)
}

// NodeCount returns the number of distinct nodes, optionally filtered by label.
func (g *MemGraph) NodeCount(label string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := 0
	for _, n := range g.nodes {
		if label == "" || n.label == label {
			count++
		}
	}
	return count
}

// Links returns all links sorted by endpoints and type.
func (g *MemGraph) Links() []store.Link {
	g.mu.Lock()
	defer g.mu.Unlock()
	links := make([]store.Link, 0, len(g.links))
	for l := range g.links {
		links = append(links, l)
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].FromUUID != links[j].FromUUID {
			return links[i].FromUUID < links[j].FromUUID
		}
		if links[i].ToUUID != links[j].ToUUID {
			return links[i].ToUUID < links[j].ToUUID
		}
		return links[i].Type < links[j].Type
	})
	return links
}
