package alertstore

import (
	"errors"
	"fmt"
)

// Store error categories.
var (
	// ErrConnectionFailed indicates a failure to connect to ClickHouse.
	ErrConnectionFailed = errors.New("alertstore: connection failed")

	// ErrInsertFailed indicates an alert insert failure.
	ErrInsertFailed = errors.New("alertstore: insert failed")

	// ErrQueryFailed indicates a query execution failure.
	ErrQueryFailed = errors.New("alertstore: query failed")
)

// StoreError wraps alert store errors with operation context.
type StoreError struct {
	Op  string // Operation that failed (e.g. "Insert", "Query", "Open")
	Err error  // Underlying error
}

// Error returns the error message.
func (e *StoreError) Error() string {
	return fmt.Sprintf("alertstore.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}
