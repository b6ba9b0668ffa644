package storage

import "errors"

// Errors shared by every backend implementation.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a record whose key already
	// exists. Processed-event and receipt rows are written once and never
	// updated, so callers treat this as "someone else got there first".
	ErrDuplicateKey = errors.New("duplicate key: record already written")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
