// Package store is the storage session relations resolve their targets through.
//
// A Store owns typed boxes (one per registered entity) on top of a
// RecordRepository, runs transactions and attaches every record it returns
// or writes, so that relation.ToOne can find its way back to storage.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asakaida/relbox/internal/repositories"
	"github.com/asakaida/relbox/pkg/relation"
)

// Recorder receives store activity, typically a *metrics.Recorder.
type Recorder interface {
	ObserveOperation(op, entity string, start time.Time, err error)
	ObserveDeferredPut(entity string)
	ObserveTx(err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Time, error) {}
func (nopRecorder) ObserveDeferredPut(string)                         {}
func (nopRecorder) ObserveTx(error)                                   {}

// Store is a storage session over a RecordRepository.
type Store struct {
	repo     repositories.RecordRepository
	logger   *slog.Logger
	debug    bool
	recorder Recorder

	mu    sync.RWMutex
	boxes map[string]relation.Box
	typed map[reflect.Type]any

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithDebugRelations enables debug logging of resolved relation targets.
func WithDebugRelations(enabled bool) Option {
	return func(s *Store) {
		s.debug = enabled
	}
}

// WithRecorder reports operations, transactions and deferred puts to r.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		s.recorder = r
	}
}

// New creates a store over repo. The store takes ownership of repo.
func New(repo repositories.RecordRepository, opts ...Option) *Store {
	s := &Store{
		repo:     repo,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		boxes:    make(map[string]relation.Box),
		typed:    make(map[reflect.Type]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Box returns the untyped box of entity.
func (s *Store) Box(entity string) (relation.Box, error) {
	s.mu.RLock()
	b, ok := s.boxes[entity]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	return b, nil
}

// Entities returns the registered entity names in sorted order.
func (s *Store) Entities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.boxes))
	for name := range s.boxes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunInTx runs fn in a transaction. Calls nested inside fn join it.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if repositories.InTx(ctx) {
		return fn(ctx)
	}

	err := s.repo.WithTx(ctx, fn)
	s.recorder.ObserveTx(err)
	if err != nil {
		s.logger.Debug("transaction rolled back", slog.Any("error", err))
	}
	return err
}

// DebugRelations reports whether relation target writes are logged.
func (s *Store) DebugRelations() bool {
	return s.debug
}

// Logger returns the store logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// Repository returns the underlying record repository.
func (s *Store) Repository() repositories.RecordRepository {
	return s.repo
}

// Close closes the repository. Closing twice returns the first result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.repo.Close()
	})
	return s.closeErr
}

func (s *Store) register(name string, typ reflect.Type, untyped relation.Box, typed any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boxes[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, name)
	}
	if _, ok := s.typed[typ]; ok {
		return fmt.Errorf("%w: type %s", ErrDuplicateEntity, typ)
	}
	s.boxes[name] = untyped
	s.typed[typ] = typed
	return nil
}

// attach binds record to the store when it supports attachment.
func (s *Store) attach(record any) {
	if a, ok := record.(interface{ Attach(relation.Session) }); ok {
		a.Attach(s)
	}
}
