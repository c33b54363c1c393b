package driver

import (
	"context"
	"fmt"

	"github.com/roach88/petal/internal/ir"
	"github.com/roach88/petal/internal/metrics"
	"github.com/roach88/petal/internal/store"
)

// Stats reports what a Driver has written since construction.
type Stats struct {
	Nodes int // distinct entities persisted
	Links int // distinct relationship pairs persisted
	Raw   int // raw statements executed
}

// Total returns nodes plus links.
func (s Stats) Total() int {
	return s.Nodes + s.Links
}

// Driver is the deduplicating, retrying store client.
//
// CRITICAL: A Driver must be used from exactly one goroutine. The dedup
// sets are unsynchronized.
type Driver struct {
	*Reader
	nodes map[string]struct{}
	links map[string]struct{}
	raw   int
}

// New creates a Driver over g with empty dedup sets.
func New(g Graph, opts ...Option) *Driver {
	return &Driver{
		Reader: NewReader(g, opts...),
		nodes:  make(map[string]struct{}),
		links:  make(map[string]struct{}),
	}
}

// linkKey identifies a relationship pair in the link dedup set.
// The separator keeps ("ab","c") and ("a","bc") apart.
func linkKey(from, to string) string {
	return from + "\x00" + to
}

// Run persists tx and reports whether any new state was added.
//
// Raw queries are executed verbatim and report false. A node write whose
// uuid was already persisted returns false immediately, without touching
// the store and without attempting the link. Dedup sets are marked only
// after the store confirmed the write, so a retried outage cannot drop data.
func (d *Driver) Run(ctx context.Context, tx ir.Transaction) (bool, error) {
	if err := tx.Validate(); err != nil {
		return false, err
	}

	if tx.IsRaw() {
		err := doErr(ctx, d.backoff, "exec", func(ctx context.Context) error {
			return d.graph.Exec(ctx, tx.Query)
		})
		if err != nil {
			return false, fmt.Errorf("run raw query: %w", err)
		}
		d.raw++
		return false, nil
	}

	added := false

	if tx.HasData() {
		if _, seen := d.nodes[tx.UUID]; seen {
			metrics.Duplicates.WithLabelValues("node").Inc()
			return false, nil
		}
		err := doErr(ctx, d.backoff, "merge_node", func(ctx context.Context) error {
			return d.graph.MergeNode(ctx, tx.OutLabel, tx.UUID, tx.Data)
		})
		if err != nil {
			return false, fmt.Errorf("add %s %s: %w", tx.OutLabel, tx.UUID, err)
		}
		d.nodes[tx.UUID] = struct{}{}
		metrics.NodesAdded.WithLabelValues(tx.OutLabel).Inc()
		added = true
	}

	if tx.HasLink() {
		key := linkKey(tx.FromUUID, tx.UUID)
		if _, seen := d.links[key]; seen {
			metrics.Duplicates.WithLabelValues("link").Inc()
			return added, nil
		}
		rel := store.Relation{
			FromLabel: tx.InLabel,
			FromUUID:  tx.FromUUID,
			ToLabel:   tx.OutLabel,
			ToUUID:    tx.UUID,
			Forward:   tx.ConnectLabels[0],
			Backward:  tx.ConnectLabels[1],
		}
		_, err := Do(ctx, d.backoff, "merge_relation", func(ctx context.Context) (int64, error) {
			return d.graph.MergeRelation(ctx, rel)
		})
		if err != nil {
			return added, fmt.Errorf("link %s -> %s: %w", tx.FromUUID, tx.UUID, err)
		}
		d.links[key] = struct{}{}
		metrics.LinksAdded.Inc()
		added = true
	}

	return added, nil
}

// Stats returns the current dedup set sizes.
func (d *Driver) Stats() Stats {
	return Stats{
		Nodes: len(d.nodes),
		Links: len(d.links),
		Raw:   d.raw,
	}
}
