// Package engine runs modules and persists their output.
//
// ARCHITECTURE:
//
// Producers: one worker goroutine per scheduled module. A worker waits
// until its module is eligible, pages input records of the module's
// in_label by store sequence, runs Process per record and groups the
// resulting transactions into batches.
//
// Queue: an unbounded FIFO of batches shared by all workers. It is the
// only data path between goroutines.
//
// Consumer: the Listener, a single goroutine owning the driver. It writes
// each batch in order followed by the batch's provenance record.
//
//	[worker A] --\
//	[worker B] ----> [Queue] --> [Listener] --> [Driver] --> graph store
//	[worker C] --/
//
// Eligibility is existence-based: a consumer starts as soon as one entity
// of its input label exists and keeps consuming as more arrive. It does
// not wait for producers to finish.
//
// Within one module, transaction order is preserved from Process through
// the batch to the store. Across modules only queue arrival order holds.
//
// Faults: an error or panic from a module is caught at the worker
// boundary. The module returns to unscheduled and the next Apply restarts
// it from the record after its cursor.
package engine
