// Package driver implements the store client that sits between the
// pipeline and the graph store.
//
// # Single Writer
//
// A Driver is owned by exactly one goroutine (the engine's listener). Its
// dedup sets are plain maps with no locking; sharing a Driver between
// goroutines is a bug. Module workers read through a Reader instead,
// which carries no mutable state.
//
// # Retry
//
// Every store call goes through Do. Errors classified by
// store.IsUnavailable are retried forever using the configured Backoff
// (one second, fixed, by default). Anything else is returned to the
// caller. Only context cancellation ends a retry loop early.
//
// # Memory
//
// The dedup sets grow for the life of the process and are never
// persisted. After a restart, the first write of each entity is repeated;
// the store's merge semantics make that harmless.
package driver
