// Package module defines the contract every pipeline processing unit
// satisfies and the registry the scheduler discovers modules from.
package module

import (
	"context"
	"iter"

	"github.com/roach88/petal/internal/ir"
)

// Spec is the static declaration of a module.
type Spec struct {
	// Name is unique within a Registry.
	Name string

	// InLabel is the entity label the module consumes. Empty for source
	// modules, which run once without input.
	InLabel string

	// OutLabel is the entity label the module produces. Never empty.
	OutLabel string

	// ConnectLabels names the relationship pair used to link an output
	// entity back to the input entity it came from. Nil skips linking.
	ConnectLabels *[2]string

	// Paged selects paged consumption of InLabel entities.
	Paged bool
}

// IsSource reports whether the module has no upstream dependency.
func (s Spec) IsSource() bool {
	return s.InLabel == ""
}

// Module is a processing unit.
//
// Process receives one input record (nil for source modules) and yields
// the transactions it produces for that record, in write order. A yielded
// error ends processing of the record and is reported as a module fault.
// Processing of a single record is never interrupted; ctx is only for the
// module's own blocking reads.
type Module interface {
	Spec() Spec
	Process(ctx context.Context, previous *ir.Record) iter.Seq2[ir.Transaction, error]
}

// Base carries a Spec and builds transactions that honor it. Embed it in a
// module implementation.
type Base struct {
	spec Spec
}

// NewBase returns a Base for spec.
func NewBase(spec Spec) Base {
	return Base{spec: spec}
}

// Spec returns the declared spec.
func (b Base) Spec() Spec {
	return b.spec
}

// DefaultTransaction returns a transaction writing data as entity uuid
// with the module's out label. When previous is non-nil and the module
// declares connect labels, the transaction also links the new entity back
// to previous.
func (b Base) DefaultTransaction(previous *ir.Record, uuid string, data map[string]any) ir.Transaction {
	tx := ir.Transaction{
		UUID:     uuid,
		Data:     data,
		OutLabel: b.spec.OutLabel,
	}
	if previous != nil && b.spec.ConnectLabels != nil {
		tx.FromUUID = previous.UUID
		tx.InLabel = b.spec.InLabel
		labels := *b.spec.ConnectLabels
		tx.ConnectLabels = &labels
	}
	return tx
}

// Yield adapts a fixed slice of transactions to the Process return type.
func Yield(txs ...ir.Transaction) iter.Seq2[ir.Transaction, error] {
	return func(yield func(ir.Transaction, error) bool) {
		for _, tx := range txs {
			if !yield(tx, nil) {
				return
			}
		}
	}
}

// Fail returns a sequence that yields err once.
func Fail(err error) iter.Seq2[ir.Transaction, error] {
	return func(yield func(ir.Transaction, error) bool) {
		yield(ir.Transaction{}, err)
	}
}
