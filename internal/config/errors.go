package config

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes configuration faults.
type ErrorCode string

const (
	// ErrCodeRead indicates the file could not be read.
	ErrCodeRead ErrorCode = "CONFIG_READ"

	// ErrCodeParse indicates the file is not a valid JSON or YAML object.
	ErrCodeParse ErrorCode = "CONFIG_PARSE"

	// ErrCodeSchema indicates a value violates the settings schema.
	ErrCodeSchema ErrorCode = "CONFIG_SCHEMA"
)

// Error is a configuration fault. Fatal at startup; at reload the
// previous settings stay active.
type Error struct {
	Code ErrorCode
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is (or wraps) a configuration fault.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}
