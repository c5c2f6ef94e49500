package demo

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/asakaida/relbox/internal/repositories/sqlite"
	"github.com/asakaida/relbox/internal/store"
)

func setupBoxes(t *testing.T) (*store.Store, *Boxes) {
	t.Helper()
	s := store.New(sqlite.SetupTestRepository(t))
	t.Cleanup(func() { s.Close() })
	b, err := Register(s)
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	return s, b
}

func TestRegister_Twice(t *testing.T) {
	s, _ := setupBoxes(t)
	if _, err := Register(s); err == nil {
		t.Error("expected error registering the demo entities twice")
	}
}

func TestRun(t *testing.T) {
	_, b := setupBoxes(t)
	ctx := context.Background()

	var out bytes.Buffer
	if err := Run(ctx, b, &out); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	want := []string{
		"stored customer 1 Alice",
		"stored order 1 A-1001 customerId=1",
		"loaded order 1 resolved=false",
		"order 1 belongs to Alice",
		"stored order 2 with new customer 2 Bob",
		"note 1 authorId=3 written by Carol",
		"note 1 authorId=1003 resolves to <none>",
		"totals customers=3 orders=2",
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("Run() wrote %d lines, want %d:\n%s", len(got), len(want), out.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOrder_ForeignKeyIsAField(t *testing.T) {
	_, b := setupBoxes(t)
	ctx := context.Background()

	c := &Customer{Name: "Dana"}
	if _, err := b.Customers.Put(ctx, c); err != nil {
		t.Fatalf("Put() customer failed: %v", err)
	}
	o := NewOrder("B-1", 10)
	o.CustomerID = c.ID
	if _, err := b.Orders.Put(ctx, o); err != nil {
		t.Fatalf("Put() order failed: %v", err)
	}

	got, err := b.Orders.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Customer.TargetID() != c.ID {
		t.Errorf("TargetID() = %d, want %d", got.Customer.TargetID(), c.ID)
	}
	target, err := got.Customer.Target(ctx)
	if err != nil {
		t.Fatalf("Target() failed: %v", err)
	}
	if target == nil || target.Name != "Dana" {
		t.Errorf("Target() = %v, want Dana", target)
	}
}

func TestNote_VirtualForeignKeySurvivesReload(t *testing.T) {
	_, b := setupBoxes(t)
	ctx := context.Background()

	n := NewNote("hello")
	n.Author.SetTarget(&Customer{Name: "Eve"})
	if _, err := b.Notes.Put(ctx, n); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if n.Author.TargetID() == 0 {
		t.Fatal("expected the pending author to be put with the note")
	}

	got, err := b.Notes.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Author.TargetID() != n.Author.TargetID() {
		t.Errorf("TargetID() = %d, want %d", got.Author.TargetID(), n.Author.TargetID())
	}
}
