package module

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/petal/internal/ir"
)

type stub struct {
	Base
}

func (s stub) Process(ctx context.Context, previous *ir.Record) iter.Seq2[ir.Transaction, error] {
	return Yield()
}

func newStub(name, in, out string) stub {
	return stub{NewBase(Spec{Name: name, InLabel: in, OutLabel: out})}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newStub("b", "Article", "HitList")))
	require.NoError(t, r.Register(newStub("a", "", "Article")))

	assert.Equal(t, []string{"a", "b"}, r.Names())
	assert.Equal(t, 2, r.Len())

	m, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, "HitList", m.Spec().OutLabel)

	specs := r.Specs()
	require.Len(t, specs, 2)
	assert.True(t, specs[0].IsSource())
	assert.False(t, specs[1].IsSource())
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want error
	}{
		{"empty name", Spec{OutLabel: "X"}, ErrInvalidSpec},
		{"empty out label", Spec{Name: "m", InLabel: "X"}, ErrInvalidSpec},
		{"connect without input", Spec{Name: "m", OutLabel: "X", ConnectLabels: ir.Connect("a", "b")}, ErrInvalidSpec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Register(stub{NewBase(tt.spec)})
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, r.Len())
		})
	}
}

func TestRegistry_RejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newStub("m", "", "Article")))
	err := r.Register(newStub("m", "", "Other"))
	assert.ErrorIs(t, err, ErrDuplicate)

	assert.Panics(t, func() { r.MustRegister(newStub("m", "", "Article")) })
}

func TestBase_DefaultTransaction(t *testing.T) {
	b := NewBase(Spec{
		Name:          "indexer",
		InLabel:       "Article",
		OutLabel:      "HitList",
		ConnectLabels: ir.Connect("hitlist", "hitlist"),
	})

	prev := &ir.Record{UUID: "a1", Label: "Article"}
	tx := b.DefaultTransaction(prev, "h1", map[string]any{"n": 1})
	require.NoError(t, tx.Validate())
	assert.Equal(t, "a1", tx.FromUUID)
	assert.Equal(t, "Article", tx.InLabel)
	assert.Equal(t, "HitList", tx.OutLabel)
	assert.Equal(t, [2]string{"hitlist", "hitlist"}, *tx.ConnectLabels)
	assert.True(t, tx.HasLink())

	src := b.DefaultTransaction(nil, "h2", map[string]any{})
	assert.False(t, src.HasLink())
	assert.Nil(t, src.ConnectLabels)
}

func TestYieldAndFail(t *testing.T) {
	var got []string
	for tx, err := range Yield(ir.Transaction{UUID: "1"}, ir.Transaction{UUID: "2"}) {
		require.NoError(t, err)
		got = append(got, tx.UUID)
	}
	assert.Equal(t, []string{"1", "2"}, got)

	boom := errors.New("boom")
	var errs []error
	for _, err := range Fail(boom) {
		errs = append(errs, err)
	}
	assert.Equal(t, []error{boom}, errs)
}
