package relation

import (
	"errors"
	"reflect"
	"testing"
)

type fieldKinds struct {
	Int64ID  int64
	Uint32ID uint32
	PtrID    *uint64
	Name     string
	hidden   uint64
}

func TestReflectAccessor(t *testing.T) {
	ownerType := reflect.TypeOf(fieldKinds{})

	t.Run("int64 field", func(t *testing.T) {
		acc, err := reflectAccessorFor(ownerType, "Int64ID")
		if err != nil {
			t.Fatalf("reflectAccessorFor() failed: %v", err)
		}
		owner := &fieldKinds{Int64ID: 7}
		if got := acc.get(owner); got != 7 {
			t.Errorf("get() = %d, want 7", got)
		}
		acc.set(owner, 9)
		if owner.Int64ID != 9 {
			t.Errorf("Int64ID = %d, want 9", owner.Int64ID)
		}
	})

	t.Run("nil pointer field reads as zero", func(t *testing.T) {
		acc, err := reflectAccessorFor(ownerType, "PtrID")
		if err != nil {
			t.Fatalf("reflectAccessorFor() failed: %v", err)
		}
		owner := &fieldKinds{}
		if got := acc.get(owner); got != 0 {
			t.Errorf("get() = %d, want 0", got)
		}
		acc.set(owner, 3)
		if owner.PtrID == nil || *owner.PtrID != 3 {
			t.Errorf("PtrID = %v, want 3", owner.PtrID)
		}
	})

	t.Run("overflow panics with FieldAccessError", func(t *testing.T) {
		acc, err := reflectAccessorFor(ownerType, "Uint32ID")
		if err != nil {
			t.Fatalf("reflectAccessorFor() failed: %v", err)
		}
		defer func() {
			r := recover()
			fae, ok := r.(*FieldAccessError)
			if !ok {
				t.Fatalf("recovered %v, want *FieldAccessError", r)
			}
			if fae.Field != "Uint32ID" {
				t.Errorf("Field = %q, want Uint32ID", fae.Field)
			}
		}()
		acc.set(&fieldKinds{}, 1<<40)
	})

	t.Run("cached per owner type and name", func(t *testing.T) {
		a, err := reflectAccessorFor(ownerType, "Int64ID")
		if err != nil {
			t.Fatalf("reflectAccessorFor() failed: %v", err)
		}
		b, err := reflectAccessorFor(ownerType, "Int64ID")
		if err != nil {
			t.Fatalf("reflectAccessorFor() failed: %v", err)
		}
		if a != b {
			t.Error("expected the cached accessor to be reused")
		}
	})
}

func TestReflectAccessor_Errors(t *testing.T) {
	tests := []struct {
		name      string
		ownerType reflect.Type
		field     string
	}{
		{name: "missing field", ownerType: reflect.TypeOf(fieldKinds{}), field: "Nope"},
		{name: "string field", ownerType: reflect.TypeOf(fieldKinds{}), field: "Name"},
		{name: "unexported field", ownerType: reflect.TypeOf(fieldKinds{}), field: "hidden"},
		{name: "non-struct owner", ownerType: reflect.TypeOf(0), field: "ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reflectAccessorFor(tt.ownerType, tt.field)
			var fae *FieldAccessError
			if !errors.As(err, &fae) {
				t.Fatalf("error = %v, want *FieldAccessError", err)
			}
		})
	}
}

func TestRelationInfo_Validate(t *testing.T) {
	tests := []struct {
		name    string
		info    RelationInfo[testOrder, testCustomer]
		wantErr bool
	}{
		{
			name: "valid field-backed relation",
			info: RelationInfo[testOrder, testCustomer]{
				Name: "customer", Source: orderInfo, Target: customerInfo,
				TargetIDProperty: Property[testOrder]{Name: "CustomerID"},
			},
		},
		{
			name: "valid virtual relation",
			info: RelationInfo[testOrder, testCustomer]{
				Name: "customer", Source: orderInfo, Target: customerInfo,
				TargetIDProperty: Property[testOrder]{Name: "customerRef", Virtual: true},
			},
		},
		{
			name: "missing name",
			info: RelationInfo[testOrder, testCustomer]{
				Source: orderInfo, Target: customerInfo,
				TargetIDProperty: Property[testOrder]{Name: "CustomerID"},
			},
			wantErr: true,
		},
		{
			name: "missing target",
			info: RelationInfo[testOrder, testCustomer]{
				Name: "customer", Source: orderInfo,
				TargetIDProperty: Property[testOrder]{Name: "CustomerID"},
			},
			wantErr: true,
		},
		{
			name: "field-backed property with wrong type",
			info: RelationInfo[testOrder, testCustomer]{
				Name: "customer", Source: orderInfo, Target: customerInfo,
				TargetIDProperty: Property[testOrder]{Name: "Number"},
			},
			wantErr: true,
		},
		{
			name: "source without ID getter",
			info: RelationInfo[testOrder, testCustomer]{
				Name: "customer", Source: &EntityInfo[testOrder]{Name: "order"}, Target: customerInfo,
				TargetIDProperty: Property[testOrder]{Name: "CustomerID"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewToOne_BrokenFieldAccessor(t *testing.T) {
	broken := &RelationInfo[testOrder, testCustomer]{
		Name: "customer", Source: orderInfo, Target: customerInfo,
		TargetIDProperty: Property[testOrder]{Name: "Missing"},
	}
	_, err := NewToOne(&testOrder{}, broken)
	var fae *FieldAccessError
	if !errors.As(err, &fae) {
		t.Fatalf("NewToOne() error = %v, want *FieldAccessError", err)
	}
}

func TestAttachment(t *testing.T) {
	var a Attachment
	if a.IsAttached() || a.Session() != nil {
		t.Fatal("zero Attachment must be detached")
	}
	s := newFakeSession()
	a.Attach(s)
	if !a.IsAttached() || a.Session() != s {
		t.Error("Attach() did not bind the session")
	}
	a.Attach(nil)
	if a.IsAttached() {
		t.Error("Attach(nil) should detach")
	}
	a.Attach(s)
	a.Detach()
	if a.Session() != nil {
		t.Error("Detach() did not clear the session")
	}
}
