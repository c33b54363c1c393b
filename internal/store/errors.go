package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned (wrapped) when a lookup matches no entity.
	ErrNotFound = errors.New("entity not found")

	// ErrUnavailable marks an error as a transient store outage.
	// Test doubles return it to simulate an unreachable store.
	ErrUnavailable = errors.New("graph store unavailable")
)

// IsUnavailable reports whether err means the store is temporarily
// unreachable and the operation may succeed if retried unchanged.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrProtocol:
			return true
		}
	}
	return false
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
