package store

import (
	"errors"
	"fmt"
)

var (
	// ErrPartialRecord is returned when the file length is not an exact
	// multiple of RecordSize, i.e. a trailing record was torn.
	ErrPartialRecord = errors.New("partial trailing record")

	// ErrOutOfOrder is returned when the Value sequence on disk is not
	// strictly increasing. Phase 1 relies on ascending order, so an
	// out-of-order store is treated as corruption rather than trusted.
	ErrOutOfOrder = errors.New("record values out of order")

	// ErrCursorMismatch is returned by VerifyBoundary when a cursor is
	// inconsistent with the store's rest boundary, typically because a
	// cursor patch was torn partway through.
	ErrCursorMismatch = errors.New("cursor inconsistent with window boundary")
)

// StorageError indicates that the prime store could not be read or written.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type StorageError struct {
	Op   string // "open", "load", "append", "patch", "verify", "sync", "reset"
	Path string

	cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("prime store %s %s: %v", e.Op, e.Path, e.cause)
}

func (e *StorageError) Unwrap() error { return e.cause }

func storageErr(op, path string, cause error) *StorageError {
	return &StorageError{Op: op, Path: path, cause: cause}
}
