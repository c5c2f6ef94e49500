package store

import "errors"

var (
	// ErrUnknownEntity is returned when no box is registered for an entity
	ErrUnknownEntity = errors.New("store: unknown entity")

	// ErrDuplicateEntity is returned when an entity name or type is registered twice
	ErrDuplicateEntity = errors.New("store: entity already registered")

	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("store: closed")
)
