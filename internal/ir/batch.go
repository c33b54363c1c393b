package ir

import (
	"fmt"
	"math/rand/v2"
)

// Batch is a delivery envelope for the Transactions one module produced
// during a bounded run.
type Batch struct {
	Label    string        `json:"label"`
	Filename string        `json:"filename,omitempty"`
	Rand     string        `json:"rand"`
	UUID     string        `json:"uuid"`
	Items    []Transaction `json:"items"`
}

// NewBatch creates an empty batch for label with a fresh identifier and salt.
func NewBatch(label string, gen IDGenerator) *Batch {
	return &Batch{
		Label: label,
		Rand:  fmt.Sprintf("%08x", rand.Uint32()),
		UUID:  gen.Generate(),
	}
}

// Add appends a transaction, preserving production order.
func (b *Batch) Add(t Transaction) {
	b.Items = append(b.Items, t)
}

// Len returns the number of transactions in the batch.
func (b *Batch) Len() int {
	return len(b.Items)
}

// Provenance returns the transaction that records the batch itself.
func (b *Batch) Provenance() Transaction {
	return Transaction{
		UUID:     b.UUID,
		OutLabel: ProvenanceLabel,
		Data: map[string]any{
			"label":    b.Label,
			"filename": b.Filename,
			"rand":     b.Rand,
		},
	}
}

// DefaultFilename is the name a batch is materialized under.
func (b *Batch) DefaultFilename() string {
	return fmt.Sprintf("%s_%s.json", b.Label, b.Rand)
}
