package bm

import "errors"

var (
	// ErrNotFound is returned when a document or vault key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNothingToAdd is returned by UniversalAdd when no tier produced items.
	ErrNothingToAdd = errors.New("nothing to add")

	// ErrInvalidBackup is returned when an imported envelope or its payload
	// cannot be used.
	ErrInvalidBackup = errors.New("invalid backup")

	// ErrNotPersisted is returned when the database was written but the
	// snapshot could not be exported to the vault.
	ErrNotPersisted = errors.New("changes not exported to the vault")

	// ErrNoActiveDocument is returned by Session operations before Open.
	ErrNoActiveDocument = errors.New("no active document")
)
