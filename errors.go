package keel

import "errors"

var (
	// Store errors.
	ErrNoDatabase     = errors.New("keel: no database configured")
	ErrDatabaseClosed = errors.New("keel: database closed")
	ErrTxReadOnly     = errors.New("keel: write attempted in read transaction")

	// Record errors.
	ErrRecordNotFound = errors.New("keel: record not found")

	// Registration errors.
	ErrUnknownLabel   = errors.New("keel: no job type registered for label")
	ErrDuplicateLabel = errors.New("keel: job type label already registered")
)
