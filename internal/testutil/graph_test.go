package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/petal/internal/store"
)

func TestMemGraph_MergeSemantics(t *testing.T) {
	g := NewMemGraph()
	ctx := context.Background()

	require.NoError(t, g.MergeNode(ctx, "Article", "a1", map[string]any{"title": "T"}))
	require.NoError(t, g.MergeNode(ctx, "Article", "a1", map[string]any{"title": "T"}))
	require.NoError(t, g.MergeNode(ctx, "HitList", "h1", map[string]any{}))
	assert.Equal(t, 1, g.NodeCount("Article"))
	assert.Equal(t, 2, g.NodeCount(""))

	rel := store.Relation{FromLabel: "Article", FromUUID: "a1", ToLabel: "HitList", ToUUID: "h1", Forward: "f", Backward: "b"}
	n, err := g.MergeRelation(ctx, rel)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = g.MergeRelation(ctx, rel)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, g.Links(), 2)

	page, err := g.Page(ctx, "Article", 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(1), page[0].Seq, "re-merge keeps the first seq")
}

func TestMemGraph_Outage(t *testing.T) {
	g := NewMemGraph()
	ctx := context.Background()

	g.SetDown(true)
	_, err := g.Count(ctx, "Article")
	assert.True(t, store.IsUnavailable(err))

	g.SetDown(false)
	g.FailNext(2)
	_, err = g.Count(ctx, "Article")
	assert.True(t, store.IsUnavailable(err))
	_, err = g.Count(ctx, "Article")
	assert.True(t, store.IsUnavailable(err))
	_, err = g.Count(ctx, "Article")
	assert.NoError(t, err)
	assert.Equal(t, 4, g.Calls())
}

func TestMemGraph_GetNotFound(t *testing.T) {
	g := NewMemGraph()
	_, err := g.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
