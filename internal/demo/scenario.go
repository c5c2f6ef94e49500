package demo

import (
	"context"
	"fmt"
	"io"
)

// Run stores a small order/customer graph and reads it back through the relations,
// writing one line per step to w.
func Run(ctx context.Context, b *Boxes, w io.Writer) error {
	alice := &Customer{Name: "Alice", Email: "alice@example.com"}
	if _, err := b.Customers.Put(ctx, alice); err != nil {
		return fmt.Errorf("failed to put customer: %w", err)
	}
	fmt.Fprintf(w, "stored customer %d %s\n", alice.ID, alice.Name)

	// Field-backed relation to a stored target
	first := NewOrder("A-1001", 4200)
	first.Customer.SetTarget(alice)
	if _, err := b.Orders.Put(ctx, first); err != nil {
		return fmt.Errorf("failed to put order: %w", err)
	}
	fmt.Fprintf(w, "stored order %d %s customerId=%d\n", first.ID, first.Number, first.CustomerID)

	loaded, err := b.Orders.Get(ctx, first.ID)
	if err != nil {
		return fmt.Errorf("failed to get order: %w", err)
	}
	if loaded == nil {
		return fmt.Errorf("order %d not found", first.ID)
	}
	fmt.Fprintf(w, "loaded order %d resolved=%t\n", loaded.ID, loaded.Customer.IsResolved())
	owner, err := loaded.Customer.Target(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve customer of order %d: %w", loaded.ID, err)
	}
	fmt.Fprintf(w, "order %d belongs to %s\n", loaded.ID, nameOf(owner))

	// Transient target is put together with its owner
	second := NewOrder("A-1002", 1500)
	bob := &Customer{Name: "Bob"}
	second.Customer.SetTarget(bob)
	if _, err := b.Orders.Put(ctx, second); err != nil {
		return fmt.Errorf("failed to put order with new customer: %w", err)
	}
	fmt.Fprintf(w, "stored order %d with new customer %d %s\n", second.ID, bob.ID, bob.Name)

	// Virtual relation, target and owner put in one transaction
	memo := NewNote("call back about A-1002")
	b.Notes.Attach(memo)
	if err := memo.Author.SetAndPutTarget(ctx, &Customer{Name: "Carol"}); err != nil {
		return fmt.Errorf("failed to put note with author: %w", err)
	}
	reloaded, err := b.Notes.Get(ctx, memo.ID)
	if err != nil {
		return fmt.Errorf("failed to get note: %w", err)
	}
	if reloaded == nil {
		return fmt.Errorf("note %d not found", memo.ID)
	}
	author, err := reloaded.Author.Target(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve author of note %d: %w", reloaded.ID, err)
	}
	fmt.Fprintf(w, "note %d authorId=%d written by %s\n", reloaded.ID, reloaded.Author.TargetID(), nameOf(author))

	// Dangling foreign key resolves to nothing
	reloaded.Author.SetTargetID(author.ID + 1000)
	missing, err := reloaded.Author.Target(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve dangling author: %w", err)
	}
	fmt.Fprintf(w, "note %d authorId=%d resolves to %s\n", reloaded.ID, reloaded.Author.TargetID(), nameOf(missing))

	customers, err := b.Customers.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count customers: %w", err)
	}
	orders, err := b.Orders.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count orders: %w", err)
	}
	fmt.Fprintf(w, "totals customers=%d orders=%d\n", customers, orders)
	return nil
}

func nameOf(c *Customer) string {
	if c == nil {
		return "<none>"
	}
	return c.Name
}
