// Package demo defines the order/customer model used by the CLI and examples.
package demo

import (
	"fmt"

	"github.com/asakaida/relbox/internal/store"
	"github.com/asakaida/relbox/pkg/relation"
)

// Entity names
const (
	EntityCustomer = "customer"
	EntityOrder    = "order"
	EntityNote     = "note"
)

// Customer is the target side of every demo relation.
type Customer struct {
	relation.Attachment
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Order references its customer through the CustomerID field.
type Order struct {
	relation.Attachment
	ID         uint64                          `json:"id"`
	Number     string                          `json:"number"`
	Total      int64                           `json:"total"`
	CustomerID uint64                          `json:"customerId"`
	Customer   *relation.ToOne[Order, Customer] `json:"-"`
}

// RelationLinks returns the order's to-one relations.
func (o *Order) RelationLinks() []relation.Link {
	return []relation.Link{o.Customer}
}

// Note references its author through a virtual foreign key that is not a field of Note.
type Note struct {
	relation.Attachment
	ID     uint64                         `json:"id"`
	Text   string                         `json:"text"`
	Author *relation.ToOne[Note, Customer] `json:"-"`
}

// RelationLinks returns the note's to-one relations.
func (n *Note) RelationLinks() []relation.Link {
	return []relation.Link{n.Author}
}

var (
	CustomerInfo = &relation.EntityInfo[Customer]{
		Name:  EntityCustomer,
		GetID: func(c *Customer) uint64 { return c.ID },
		SetID: func(c *Customer, id uint64) { c.ID = id },
	}
	OrderInfo = &relation.EntityInfo[Order]{
		Name:  EntityOrder,
		GetID: func(o *Order) uint64 { return o.ID },
		SetID: func(o *Order, id uint64) { o.ID = id },
	}
	NoteInfo = &relation.EntityInfo[Note]{
		Name:  EntityNote,
		GetID: func(n *Note) uint64 { return n.ID },
		SetID: func(n *Note, id uint64) { n.ID = id },
	}

	OrderCustomer = relation.MustRelationInfo("customer", OrderInfo, CustomerInfo,
		relation.Property[Order]{Name: "CustomerID"})
	NoteAuthor = relation.MustRelationInfo("author", NoteInfo, CustomerInfo,
		relation.Property[Note]{Name: "authorId", Virtual: true})
)

// NewOrder returns a transient order with its customer relation set up.
func NewOrder(number string, total int64) *Order {
	o := &Order{Number: number, Total: total}
	initOrder(o)
	return o
}

// NewNote returns a transient note with its author relation set up.
func NewNote(text string) *Note {
	n := &Note{Text: text}
	initNote(n)
	return n
}

func initOrder(o *Order) {
	o.Customer = relation.MustToOne(o, OrderCustomer)
}

func initNote(n *Note) {
	n.Author = relation.MustToOne(n, NoteAuthor)
}

// Boxes groups the demo entity boxes of one store.
type Boxes struct {
	Customers *store.Box[Customer]
	Orders    *store.Box[Order]
	Notes     *store.Box[Note]
}

// Register registers the demo entities with s.
func Register(s *store.Store) (*Boxes, error) {
	customers, err := store.Register(s, CustomerInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", EntityCustomer, err)
	}
	orders, err := store.Register(s, OrderInfo, store.WithInit(initOrder))
	if err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", EntityOrder, err)
	}
	notes, err := store.Register(s, NoteInfo, store.WithInit(initNote))
	if err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", EntityNote, err)
	}
	return &Boxes{Customers: customers, Orders: orders, Notes: notes}, nil
}
