package relation

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrInvalidArgument is returned when a relation is constructed without an owner or metadata.
	ErrInvalidArgument = errors.New("relation: invalid argument")

	// ErrDetached is returned when no storage session can be resolved for a relation.
	// Attach the owner (or the target) to a session and retry.
	ErrDetached = errors.New("relation: record is not attached to a storage session; attach it first")

	// ErrUnimplemented is returned by operations that are deliberately unsupported.
	ErrUnimplemented = errors.New("relation: not implemented")
)

// FieldAccessError reports a failure to read or write a foreign key field on an owner record.
type FieldAccessError struct {
	OwnerType reflect.Type
	Field     string
	Err       error
}

func (e *FieldAccessError) Error() string {
	return fmt.Sprintf("relation: could not access field %s.%s: %v", e.OwnerType, e.Field, e.Err)
}

func (e *FieldAccessError) Unwrap() error {
	return e.Err
}

// IsDetached reports whether err was caused by a missing storage session.
func IsDetached(err error) bool {
	return errors.Is(err, ErrDetached)
}
