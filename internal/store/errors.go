package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all adapter implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., an identity with the same email).
	ErrDuplicate = errors.New("entity already exists")

	// ErrConflict is returned by Save when a record was changed or removed
	// by another writer since it was loaded, or when an inserted id is
	// already taken. Callers should reload and retry with fresh data.
	ErrConflict = errors.New("conflicting concurrent update")

	// ErrStorage is returned when the underlying storage could not be read
	// or written. The wrapped error carries the cause and must never be
	// shown to clients.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidEntity is returned when a stored entity cannot be decoded.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrRecordNotFound indicates that the requested record does not exist.
	ErrRecordNotFound = fmt.Errorf("%w: record", ErrNotFound)

	// ErrIdentityNotFound indicates that the requested identity does not exist.
	ErrIdentityNotFound = fmt.Errorf("%w: identity", ErrNotFound)

	// ErrEmailExists indicates that an identity with the given email already exists.
	ErrEmailExists = fmt.Errorf("%w: email", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictError checks if the error reports a concurrent modification.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsStorageError checks if the error is a storage read/write fault.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorage)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The collection/kind (e.g., "todos", "identities")
	Operation string // The operation that failed (e.g., "load", "save")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// StorageFailure wraps an I/O or driver error so that it matches ErrStorage.
func StorageFailure(entity, operation string, err error) error {
	return NewStoreError(entity, operation, "storage unavailable", fmt.Errorf("%w: %w", ErrStorage, err))
}

// ConflictFailure reports a version mismatch for one record.
func ConflictFailure(entity, operation, id string, expected, found int64) error {
	return NewStoreError(
		entity,
		operation,
		fmt.Sprintf("record %s: expected version %d, found %d", id, expected, found),
		ErrConflict,
	)
}
