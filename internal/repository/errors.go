// Package repository is the persistence layer: merge upserts for channel
// rows, full replacement for snapshot documents and per-field merge for
// refresh bookkeeping.
package repository

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrMissingKey is returned when a row has no primary key.
	ErrMissingKey = errors.New("repository: missing primary key")
)
