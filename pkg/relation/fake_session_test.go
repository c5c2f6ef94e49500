package relation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

type testCustomer struct {
	Attachment
	ID   uint64
	Name string
}

type testOrder struct {
	Attachment
	ID         uint64
	Number     string
	CustomerID uint64
	Customer   *ToOne[testOrder, testCustomer]
}

// testNote has a virtual relation to its author.
type testNote struct {
	Attachment
	ID     uint64
	Text   string
	Author *ToOne[testNote, testCustomer]
}

var (
	customerInfo = &EntityInfo[testCustomer]{
		Name:  "customer",
		GetID: func(c *testCustomer) uint64 { return c.ID },
		SetID: func(c *testCustomer, id uint64) { c.ID = id },
	}
	orderInfo = &EntityInfo[testOrder]{
		Name:  "order",
		GetID: func(o *testOrder) uint64 { return o.ID },
		SetID: func(o *testOrder, id uint64) { o.ID = id },
	}
	noteInfo = &EntityInfo[testNote]{
		Name:  "note",
		GetID: func(n *testNote) uint64 { return n.ID },
		SetID: func(n *testNote, id uint64) { n.ID = id },
	}

	orderCustomer = MustRelationInfo("customer", orderInfo, customerInfo, Property[testOrder]{Name: "CustomerID"})
	noteAuthor    = MustRelationInfo("author", noteInfo, customerInfo, Property[testNote]{Name: "authorId", Virtual: true})
)

func newTestOrder() *testOrder {
	o := &testOrder{}
	o.Customer = MustToOne(o, orderCustomer)
	return o
}

func newTestNote() *testNote {
	n := &testNote{}
	n.Author = MustToOne(n, noteAuthor)
	return n
}

// fakeBox is an in-memory collection that counts its calls.
type fakeBox struct {
	name    string
	mu      sync.Mutex
	records map[uint64]any
	nextID  uint64
	getID   func(any) uint64
	setID   func(any, uint64)
	putErr  error

	gets atomic.Int64
	puts atomic.Int64
}

func newFakeBox[T any](info *EntityInfo[T]) *fakeBox {
	return &fakeBox{
		name:    info.Name,
		records: make(map[uint64]any),
		getID:   func(r any) uint64 { return info.GetID(r.(*T)) },
		setID:   func(r any, id uint64) { info.SetID(r.(*T), id) },
	}
}

func (b *fakeBox) Get(ctx context.Context, id uint64) (any, error) {
	b.gets.Add(1)
	if id == 0 {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records[id], nil
}

func (b *fakeBox) Put(ctx context.Context, record any) (uint64, error) {
	b.puts.Add(1)
	if b.putErr != nil {
		return 0, b.putErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.getID(record)
	if id == 0 {
		b.nextID++
		id = b.nextID
		b.setID(record, id)
	} else if id > b.nextID {
		b.nextID = id
	}
	b.records[id] = record
	return id, nil
}

func (b *fakeBox) ID(record any) uint64 {
	return b.getID(record)
}

func (b *fakeBox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

func (b *fakeBox) snapshot() (map[uint64]any, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := make(map[uint64]any, len(b.records))
	for k, v := range b.records {
		copied[k] = v
	}
	return copied, b.nextID
}

func (b *fakeBox) restore(records map[uint64]any, nextID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = records
	b.nextID = nextID
}

// fakeSession is a Session over fake boxes with snapshot-based transactions.
type fakeSession struct {
	boxes  map[string]*fakeBox
	debug  bool
	logger *slog.Logger
	logBuf *bytes.Buffer

	txMu    sync.Mutex
	txCount int
}

func newFakeSession() *fakeSession {
	buf := &bytes.Buffer{}
	return &fakeSession{
		boxes: map[string]*fakeBox{
			customerInfo.Name: newFakeBox(customerInfo),
			orderInfo.Name:    newFakeBox(orderInfo),
			noteInfo.Name:     newFakeBox(noteInfo),
		},
		logger: slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
		logBuf: buf,
	}
}

func (s *fakeSession) Box(entity string) (Box, error) {
	b, ok := s.boxes[entity]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
	return b, nil
}

func (s *fakeSession) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.txCount++

	type saved struct {
		records map[uint64]any
		nextID  uint64
	}
	snapshots := make(map[string]saved, len(s.boxes))
	for name, b := range s.boxes {
		records, nextID := b.snapshot()
		snapshots[name] = saved{records: records, nextID: nextID}
	}
	if err := fn(ctx); err != nil {
		for name, b := range s.boxes {
			b.restore(snapshots[name].records, snapshots[name].nextID)
		}
		return err
	}
	return nil
}

func (s *fakeSession) DebugRelations() bool {
	return s.debug
}

func (s *fakeSession) Logger() *slog.Logger {
	return s.logger
}

func (s *fakeSession) box(name string) *fakeBox {
	return s.boxes[name]
}

var errPutFailed = errors.New("put failed")
