// Package store provides SQLite-backed graph storage for pipeline entities.
//
// The store holds two kinds of records:
//   - Nodes: entities identified by a unique uuid, carrying a label and a
//     canonical JSON data document
//   - Links: typed, directed relationships between two nodes
//
// # Merge Semantics
//
// Every write is an upsert. Merging the same node twice leaves one node;
// merging the same link twice leaves one link.
//
// # Ordering
//
// Nodes carry a seq INTEGER assigned at first insertion. Updating a node
// never changes its seq, so paging by seq gives module workers a stable,
// restartable cursor over their input label.
//
// # Error Classification
//
// Errors that indicate the store is temporarily unreachable (busy, locked,
// cannot open, I/O) satisfy IsUnavailable. A lookup miss wraps ErrNotFound.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Links are removed with their nodes
package store
