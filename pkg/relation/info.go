package relation

import (
	"fmt"
	"reflect"
)

// EntityInfo describes a record type known to the storage layer.
type EntityInfo[T any] struct {
	Name  string           // Entity name, also the collection name (e.g., "customer")
	GetID func(*T) uint64  // Returns the record ID, 0 for transient records
	SetID func(*T, uint64) // Stores an assigned ID back into the record (optional for relations)
}

// ID returns the identifier of record, 0 if record is nil or transient.
func (e *EntityInfo[T]) ID(record *T) uint64 {
	if record == nil {
		return 0
	}
	return e.GetID(record)
}

// Validate checks if the entity info is usable
func (e *EntityInfo[T]) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if e.GetID == nil {
		return fmt.Errorf("entity %s: ID getter is required", e.Name)
	}
	return nil
}

// Property describes the foreign key property of a to-one relation on the source entity.
type Property[S any] struct {
	Name string // Property name; for field-backed properties the Go struct field name

	// Virtual properties live only inside the ToOne; they are not a field of the owner.
	Virtual bool

	// Accessor reads and writes a field-backed property. When nil, a reflection
	// accessor for the field named Name is resolved and cached per owner type.
	Accessor FieldAccessor[S]
}

// RelationInfo is the immutable descriptor shared by every ToOne of one relation.
// Relations are compared by pointer identity, so create one RelationInfo per relation.
type RelationInfo[S any, T any] struct {
	Name             string         // Relation name (e.g., "customer")
	Source           *EntityInfo[S] // Entity that owns the relation
	Target           *EntityInfo[T] // Entity the relation points to
	TargetIDProperty Property[S]    // Foreign key property on the source
}

// NewRelationInfo creates a validated relation descriptor.
func NewRelationInfo[S any, T any](name string, source *EntityInfo[S], target *EntityInfo[T], prop Property[S]) (*RelationInfo[S, T], error) {
	info := &RelationInfo[S, T]{
		Name:             name,
		Source:           source,
		Target:           target,
		TargetIDProperty: prop,
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}

// MustRelationInfo is like NewRelationInfo but panics on error.
// It is meant for package-level relation declarations.
func MustRelationInfo[S any, T any](name string, source *EntityInfo[S], target *EntityInfo[T], prop Property[S]) *RelationInfo[S, T] {
	info, err := NewRelationInfo(name, source, target, prop)
	if err != nil {
		panic(err)
	}
	return info
}

// Validate checks if the relation info is complete and its foreign key property is accessible.
func (r *RelationInfo[S, T]) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("relation name is required")
	}
	if r.Source == nil {
		return fmt.Errorf("relation %s: source entity is required", r.Name)
	}
	if err := r.Source.Validate(); err != nil {
		return fmt.Errorf("relation %s: invalid source: %w", r.Name, err)
	}
	if r.Target == nil {
		return fmt.Errorf("relation %s: target entity is required", r.Name)
	}
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("relation %s: invalid target: %w", r.Name, err)
	}
	if r.TargetIDProperty.Name == "" {
		return fmt.Errorf("relation %s: target ID property name is required", r.Name)
	}
	if !r.TargetIDProperty.Virtual && r.TargetIDProperty.Accessor == nil {
		if _, err := reflectAccessorFor(reflect.TypeOf((*S)(nil)).Elem(), r.TargetIDProperty.Name); err != nil {
			return fmt.Errorf("relation %s: %w", r.Name, err)
		}
	}
	return nil
}

// String returns a string representation of the relation
// Format: source.property->target
func (r *RelationInfo[S, T]) String() string {
	return fmt.Sprintf("%s.%s->%s", r.Source.Name, r.TargetIDProperty.Name, r.Target.Name)
}
