package ir

import (
	"errors"
	"fmt"
)

// ProvenanceLabel is the entity label under which batch provenance records
// are persisted.
const ProvenanceLabel = "Batch"

// ErrInvalidTransaction is returned (wrapped) when a Transaction violates
// its field contract.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Transaction is the atomic unit of intended persistence.
//
// When Query is set every other field is ignored and the statement is
// executed verbatim. Otherwise Data (if present) is merged as an entity
// labelled OutLabel with identifier UUID, and ConnectLabels (if present)
// are merged as two relationships between the InLabel entity FromUUID and
// the OutLabel entity UUID:
//
//	(from:InLabel)-[ConnectLabels[0]]->(to:OutLabel)
//	(to:OutLabel)-[ConnectLabels[1]]->(from:InLabel)
type Transaction struct {
	Query         string         `json:"query,omitempty"`
	FromUUID      string         `json:"from_uuid,omitempty"`
	UUID          string         `json:"uuid,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	OutLabel      string         `json:"out_label,omitempty"`
	InLabel       string         `json:"in_label,omitempty"`
	ConnectLabels *[2]string     `json:"connect_labels,omitempty"`
}

// IsRaw reports whether the transaction bypasses the node/link path.
func (t Transaction) IsRaw() bool {
	return t.Query != ""
}

// HasData reports whether the transaction carries an entity write.
func (t Transaction) HasData() bool {
	return t.Data != nil
}

// HasLink reports whether the transaction carries a link write.
func (t Transaction) HasLink() bool {
	return t.FromUUID != "" && t.ConnectLabels != nil
}

// Validate checks the field contract:
//   - data present requires uuid and out_label
//   - connect labels present require from_uuid, uuid and both labels
func (t Transaction) Validate() error {
	if t.IsRaw() {
		return nil
	}
	if t.HasData() {
		if t.UUID == "" {
			return fmt.Errorf("%w: data without uuid", ErrInvalidTransaction)
		}
		if t.OutLabel == "" {
			return fmt.Errorf("%w: data for %s without out_label", ErrInvalidTransaction, t.UUID)
		}
	}
	if t.ConnectLabels != nil {
		if t.FromUUID == "" || t.UUID == "" {
			return fmt.Errorf("%w: connect_labels require from_uuid and uuid", ErrInvalidTransaction)
		}
		if t.InLabel == "" || t.OutLabel == "" {
			return fmt.Errorf("%w: connect_labels require in_label and out_label", ErrInvalidTransaction)
		}
		if t.ConnectLabels[0] == "" || t.ConnectLabels[1] == "" {
			return fmt.Errorf("%w: empty relationship type", ErrInvalidTransaction)
		}
	}
	if !t.HasData() && !t.HasLink() {
		return fmt.Errorf("%w: nothing to write", ErrInvalidTransaction)
	}
	return nil
}

// Connect returns a connect-labels pair.
func Connect(from, to string) *[2]string {
	return &[2]string{from, to}
}

// Record is a persisted entity as read back from the graph store.
type Record struct {
	UUID  string         `json:"uuid"`
	Label string         `json:"label"`
	Data  map[string]any `json:"data"`
	Seq   int64          `json:"seq"` // Store insertion order; paging cursor
}

// String returns the value of a string field in Data, or "" if absent.
func (r Record) String(key string) string {
	if r.Data == nil {
		return ""
	}
	s, _ := r.Data[key].(string)
	return s
}
