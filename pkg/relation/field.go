package relation

import (
	"fmt"
	"reflect"
	"sync"
)

// FieldAccessor reads and writes the foreign key field of an owner record.
// Get reports false when the field holds no value (e.g., a nil pointer).
type FieldAccessor[S any] interface {
	Get(owner *S) (uint64, bool)
	Set(owner *S, id uint64)
}

// FieldFunc adapts a pair of functions to FieldAccessor.
// This is the fast path for generated or hand-written entity metadata.
type FieldFunc[S any] struct {
	GetFunc func(owner *S) (uint64, bool)
	SetFunc func(owner *S, id uint64)
}

// Get calls f.GetFunc(owner).
func (f FieldFunc[S]) Get(owner *S) (uint64, bool) {
	return f.GetFunc(owner)
}

// Set calls f.SetFunc(owner, id).
func (f FieldFunc[S]) Set(owner *S, id uint64) {
	f.SetFunc(owner, id)
}

type fieldKey struct {
	owner reflect.Type
	name  string
}

// reflectAccessor accesses an integer (or pointer to integer) struct field by index.
type reflectAccessor struct {
	ownerType reflect.Type
	name      string
	index     []int
	pointer   bool
	kind      reflect.Kind
}

// fieldCache is the process-wide cache of resolved reflection accessors,
// keyed by (owner struct type, field name).
var fieldCache sync.Map // map[fieldKey]*reflectAccessor

func reflectAccessorFor(ownerType reflect.Type, name string) (*reflectAccessor, error) {
	key := fieldKey{owner: ownerType, name: name}
	if cached, ok := fieldCache.Load(key); ok {
		return cached.(*reflectAccessor), nil
	}

	if ownerType.Kind() != reflect.Struct {
		return nil, &FieldAccessError{OwnerType: ownerType, Field: name, Err: fmt.Errorf("owner is not a struct")}
	}
	field, ok := ownerType.FieldByName(name)
	if !ok {
		return nil, &FieldAccessError{OwnerType: ownerType, Field: name, Err: fmt.Errorf("no such field")}
	}
	if !field.IsExported() {
		return nil, &FieldAccessError{OwnerType: ownerType, Field: name, Err: fmt.Errorf("field is not exported")}
	}

	acc := &reflectAccessor{ownerType: ownerType, name: name, index: field.Index}
	ft := field.Type
	if ft.Kind() == reflect.Pointer {
		acc.pointer = true
		ft = ft.Elem()
	}
	switch ft.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		acc.kind = ft.Kind()
	default:
		return nil, &FieldAccessError{OwnerType: ownerType, Field: name, Err: fmt.Errorf("unsupported field type %s", field.Type)}
	}

	actual, _ := fieldCache.LoadOrStore(key, acc)
	return actual.(*reflectAccessor), nil
}

func (a *reflectAccessor) get(owner any) uint64 {
	v := reflect.ValueOf(owner).Elem().FieldByIndex(a.index)
	if a.pointer {
		if v.IsNil() {
			return 0
		}
		v = v.Elem()
	}
	switch a.kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(v.Int())
	default:
		return v.Uint()
	}
}

func (a *reflectAccessor) set(owner any, id uint64) {
	v := reflect.ValueOf(owner).Elem().FieldByIndex(a.index)
	if a.pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	switch a.kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.OverflowInt(int64(id)) || int64(id) < 0 {
			panic(&FieldAccessError{OwnerType: a.ownerType, Field: a.name, Err: fmt.Errorf("id %d overflows %s", id, v.Type())})
		}
		v.SetInt(int64(id))
	default:
		if v.OverflowUint(id) {
			panic(&FieldAccessError{OwnerType: a.ownerType, Field: a.name, Err: fmt.Errorf("id %d overflows %s", id, v.Type())})
		}
		v.SetUint(id)
	}
}

// reflectField adapts a reflectAccessor to FieldAccessor for owner type S.
type reflectField[S any] struct {
	acc *reflectAccessor
}

func (f reflectField[S]) Get(owner *S) (uint64, bool) {
	return f.acc.get(owner), true
}

func (f reflectField[S]) Set(owner *S, id uint64) {
	f.acc.set(owner, id)
}
