package engine

import (
	"errors"
	"fmt"
)

// Phase identifies where in a module's run a fault happened.
type Phase string

const (
	// PhaseEligibility is the input count check.
	PhaseEligibility Phase = "ELIGIBILITY"

	// PhaseRead is paging input records from the store.
	PhaseRead Phase = "READ"

	// PhaseProcess is the module's own Process call.
	PhaseProcess Phase = "PROCESS"

	// PhasePanic is a recovered panic inside Process.
	PhasePanic Phase = "PANIC"
)

// ModuleError is a fault caught at a module worker boundary.
//
// A ModuleError never stops the pipeline. The faulted module goes back to
// unscheduled and is restarted by the next Apply.
type ModuleError struct {
	// Module is the faulted module's name.
	Module string

	// Phase is where the fault happened.
	Phase Phase

	// Record is the uuid of the input being processed, if any.
	Record string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ModuleError) Error() string {
	if e.Record != "" {
		return fmt.Sprintf("%s: module %s (record=%s): %v", e.Phase, e.Module, e.Record, e.Err)
	}
	return fmt.Sprintf("%s: module %s: %v", e.Phase, e.Module, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ModuleError) Unwrap() error {
	return e.Err
}

// IsModuleError reports whether err is (or wraps) a ModuleError.
func IsModuleError(err error) bool {
	var me *ModuleError
	return errors.As(err, &me)
}

// ErrPanic wraps a value recovered from a module panic.
var ErrPanic = errors.New("module panicked")
