package driver

import (
	"context"

	"github.com/roach88/petal/internal/ir"
	"github.com/roach88/petal/internal/store"
)

// Graph is the store surface the driver needs. *store.Store implements it;
// tests substitute an in-memory double.
type Graph interface {
	Exec(ctx context.Context, query string) error
	MergeNode(ctx context.Context, label, uuid string, data map[string]any) error
	MergeRelation(ctx context.Context, rel store.Relation) (int64, error)
	Get(ctx context.Context, uuid string) (ir.Record, error)
	Count(ctx context.Context, label string) (int64, error)
	Page(ctx context.Context, label string, after int64, limit int) ([]ir.Record, error)
}

// Reader is a retrying, read-only view of the graph for module workers.
//
// Thread-safety: Reader holds no mutable state and is safe for concurrent use.
type Reader struct {
	graph   Graph
	backoff Backoff
}

// Option configures a Reader or Driver.
type Option func(*Reader)

// WithBackoff replaces the default fixed one-second backoff.
func WithBackoff(b Backoff) Option {
	return func(r *Reader) {
		r.backoff = b
	}
}

// NewReader creates a Reader over g.
func NewReader(g Graph, opts ...Option) *Reader {
	r := &Reader{
		graph:   g,
		backoff: FixedBackoff{Interval: DefaultRetryInterval},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get fetches the full record for uuid. A miss returns an error wrapping
// store.ErrNotFound; it is not retried.
func (r *Reader) Get(ctx context.Context, uuid string) (ir.Record, error) {
	return Do(ctx, r.backoff, "get", func(ctx context.Context) (ir.Record, error) {
		return r.graph.Get(ctx, uuid)
	})
}

// Count returns the number of entities labelled label.
func (r *Reader) Count(ctx context.Context, label string) (int64, error) {
	return Do(ctx, r.backoff, "count", func(ctx context.Context) (int64, error) {
		return r.graph.Count(ctx, label)
	})
}

// Page returns up to limit entities of label after the seq cursor.
func (r *Reader) Page(ctx context.Context, label string, after int64, limit int) ([]ir.Record, error) {
	return Do(ctx, r.backoff, "page", func(ctx context.Context) ([]ir.Record, error) {
		return r.graph.Page(ctx, label, after, limit)
	})
}
