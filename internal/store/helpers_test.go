package store

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/asakaida/relbox/internal/infrastructure/metrics"
	"github.com/asakaida/relbox/internal/repositories/sqlite"
	"github.com/asakaida/relbox/pkg/relation"
)

type customer struct {
	relation.Attachment
	ID   uint64
	Name string
}

type order struct {
	relation.Attachment
	ID         uint64
	Number     string
	CustomerID uint64
	Customer   *relation.ToOne[order, customer] `json:"-"`
}

func (o *order) RelationLinks() []relation.Link {
	return []relation.Link{o.Customer}
}

// note links to its author through a virtual foreign key.
type note struct {
	relation.Attachment
	ID     uint64
	Text   string
	Author *relation.ToOne[note, customer] `json:"-"`
}

func (n *note) RelationLinks() []relation.Link {
	return []relation.Link{n.Author}
}

// brokenOrder cannot be encoded, so every put of it fails after its targets are written.
type brokenOrder struct {
	relation.Attachment
	ID         uint64
	CustomerID uint64
	Payload    unencodable
	Customer   *relation.ToOne[brokenOrder, customer] `json:"-"`
}

var errUnencodable = errors.New("payload cannot be encoded")

type unencodable struct{}

func (unencodable) MarshalJSON() ([]byte, error) {
	return nil, errUnencodable
}

var (
	customerInfo = &relation.EntityInfo[customer]{
		Name:  "customer",
		GetID: func(c *customer) uint64 { return c.ID },
		SetID: func(c *customer, id uint64) { c.ID = id },
	}
	orderInfo = &relation.EntityInfo[order]{
		Name:  "order",
		GetID: func(o *order) uint64 { return o.ID },
		SetID: func(o *order, id uint64) { o.ID = id },
	}
	noteInfo = &relation.EntityInfo[note]{
		Name:  "note",
		GetID: func(n *note) uint64 { return n.ID },
		SetID: func(n *note, id uint64) { n.ID = id },
	}
	brokenOrderInfo = &relation.EntityInfo[brokenOrder]{
		Name:  "broken_order",
		GetID: func(o *brokenOrder) uint64 { return o.ID },
		SetID: func(o *brokenOrder, id uint64) { o.ID = id },
	}

	orderCustomer = relation.MustRelationInfo("customer", orderInfo, customerInfo,
		relation.Property[order]{Name: "CustomerID"})
	noteAuthor = relation.MustRelationInfo("author", noteInfo, customerInfo,
		relation.Property[note]{Name: "authorId", Virtual: true})
	brokenOrderCustomer = relation.MustRelationInfo("customer", brokenOrderInfo, customerInfo,
		relation.Property[brokenOrder]{Name: "CustomerID"})
)

func initOrder(o *order) {
	o.Customer = relation.MustToOne(o, orderCustomer)
}

func initNote(n *note) {
	n.Author = relation.MustToOne(n, noteAuthor)
}

func initBrokenOrder(o *brokenOrder) {
	o.Customer = relation.MustToOne(o, brokenOrderCustomer)
}

func newOrder(number string) *order {
	o := &order{Number: number}
	initOrder(o)
	return o
}

func newNote(text string) *note {
	n := &note{Text: text}
	initNote(n)
	return n
}

type testStore struct {
	*Store
	customers *Box[customer]
	orders    *Box[order]
	notes     *Box[note]
	broken    *Box[brokenOrder]
	collector *metrics.Collector
	logs      *bytes.Buffer
}

func setupStore(t *testing.T, opts ...Option) *testStore {
	t.Helper()

	collector := metrics.NewCollector()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	opts = append([]Option{
		WithLogger(logger),
		WithRecorder(metrics.NewRecorder(collector, nil)),
	}, opts...)
	s := New(sqlite.SetupTestRepository(t), opts...)
	t.Cleanup(func() { s.Close() })

	return &testStore{
		Store:     s,
		customers: MustRegister(s, customerInfo),
		orders:    MustRegister(s, orderInfo, WithInit(initOrder)),
		notes:     MustRegister(s, noteInfo, WithInit(initNote)),
		broken:    MustRegister(s, brokenOrderInfo, WithInit(initBrokenOrder)),
		collector: collector,
		logs:      logs,
	}
}

func (ts *testStore) ops(op, entity string) uint64 {
	return ts.collector.GetStoreMetrics().OperationCounts[metrics.OperationKey(op, entity)]
}
