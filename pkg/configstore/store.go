// Package configstore persists named configuration fields. The gateway keeps
// all managed endpoint definitions in one list-typed field and always reads
// and writes that field whole.
package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Store is a key/value configuration store holding JSON values.
type Store interface {
	// GetField returns the stored value, or nil when the field was never set.
	GetField(ctx context.Context, name string) (json.RawMessage, error)

	// SetField replaces the stored value.
	SetField(ctx context.Context, name string, value json.RawMessage) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("config store is closed")

// StorageError wraps a backend failure with the backend and operation names.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s store %s failed: %v", e.Backend, e.Operation, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

func newStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// validValue rejects values that are not JSON so every backend stores the
// same thing.
func validValue(backend string, value json.RawMessage) error {
	if !json.Valid(value) {
		return newStorageError(backend, "set", errors.New("value is not valid JSON"))
	}
	return nil
}
