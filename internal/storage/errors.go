package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a record whose key already
	// exists. Trade ingestion treats it as a successful no-op.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrVersionConflict is returned by CompareAndSetScore when the expected
	// sequence does not match the stored one.
	ErrVersionConflict = errors.New("score version conflict")

	// ErrUnavailable is returned when the backing store cannot be reached.
	// Callers retry with the same dedup key rather than dropping the write.
	ErrUnavailable = errors.New("store unavailable")
)
