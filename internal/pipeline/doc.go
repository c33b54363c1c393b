// Package pipeline is the top-level control loop.
//
// An Interface owns one run of the pipeline: it prepares the working
// directories, opens the graph store, wires the scheduler to the driver
// listener, and then loops until interrupted. Each loop iteration sleeps,
// checks whether every module is done, reports status, and reloads the
// settings file on its reload period or as soon as the file changes.
//
// Shutdown order is fixed: stop the scheduler (workers finish their
// current item and flush), close the queue, let the listener drain for at
// most the drain timeout, then close the store.
package pipeline
