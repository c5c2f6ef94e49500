package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

// txState is the transaction carried in a context
type txState struct {
	tx *sql.Tx

	mu          sync.Mutex
	afterCommit []func()
}

// ContextWithTx returns a context carrying tx
func ContextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, &txState{tx: tx})
}

// TxFromContext returns the transaction carried by ctx
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	state, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		return nil, false
	}
	return state.tx, true
}

// InTx reports whether ctx carries a transaction
func InTx(ctx context.Context) bool {
	_, ok := TxFromContext(ctx)
	return ok
}

// Executor returns the transaction carried by ctx, or db when there is none
func Executor(ctx context.Context, db *sql.DB) DBTX {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}

// AfterCommit schedules fn to run once the transaction carried by ctx commits.
// Without a transaction fn runs immediately. Callbacks of a rolled back transaction are dropped.
func AfterCommit(ctx context.Context, fn func()) {
	state, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		fn()
		return
	}
	state.mu.Lock()
	state.afterCommit = append(state.afterCommit, fn)
	state.mu.Unlock()
}

// RunInTx runs fn inside a transaction on db.
// If ctx already carries a transaction, fn joins it and commit is left to the outermost call.
func RunInTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	state := &txState{tx: tx}
	if err := fn(context.WithValue(ctx, txKey{}, state)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	state.mu.Lock()
	callbacks := state.afterCommit
	state.mu.Unlock()
	for _, cb := range callbacks {
		cb()
	}
	return nil
}
