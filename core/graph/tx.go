package graph

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/internal/logging"
)

// Work is a unit of work run against a graph handle bound to one transaction.
type Work[T any] func(g *Graph) (T, error)

type txConfig struct {
	name        string
	readOnly    bool
	rollsBackOn func(error) bool
}

// TxOption customises a single Execute call.
type TxOption func(*txConfig)

// Named labels the transaction in log output.
func Named(name string) TxOption { return func(c *txConfig) { c.name = name } }

// ReadOnly marks the unit of work as a read. Read transactions are always
// rolled back when they finish.
func ReadOnly() TxOption { return func(c *txConfig) { c.readOnly = true } }

// WithRollbackPolicy decides per error whether a failed unit of work is rolled
// back. Returning false commits the work done so far; the error is still
// returned to the caller. The default rolls back on every error.
func WithRollbackPolicy(fn func(error) bool) TxOption {
	return func(c *txConfig) { c.rollsBackOn = fn }
}

// CommitOn suppresses rollback for errors matching any of targets.
func CommitOn(targets ...error) TxOption {
	return WithRollbackPolicy(func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return false
			}
		}
		return true
	})
}

// Execute runs work inside a new transaction. On normal return the
// transaction commits; on error it rolls back unless the rollback policy says
// otherwise. The transaction is released on every exit path, including panics.
// Commit failures are returned as *errors.StorageError and never retried.
func Execute[T any](ctx context.Context, s *Store, work Work[T], opts ...TxOption) (result T, err error) {
	cfg := txConfig{rollsBackOn: func(error) bool { return true }}
	for _, o := range opts {
		o(&cfg)
	}

	ctx = logging.WithTransactionID(ctx, uuid.NewString())
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, apperrors.NewStorage("begin", err)
	}
	logging.TransactionEvent(ctx, "graph", "begin", 0, "name", cfg.name)

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
			logging.TransactionEvent(ctx, "graph", "rollback", time.Since(start), "name", cfg.name)
		}
		logging.TransactionEvent(ctx, "graph", "finish", time.Since(start), "name", cfg.name)
	}()

	g := &Graph{ctx: ctx, tx: tx}
	result, err = work(g)
	if err != nil {
		var zero T
		if cfg.rollsBackOn(err) {
			return zero, err
		}
		if cerr := tx.Commit(); cerr != nil {
			return zero, errors.Join(err, apperrors.NewStorage("commit", cerr))
		}
		done = true
		logging.TransactionEvent(ctx, "graph", "commit", time.Since(start), "name", cfg.name, "error", err.Error())
		return zero, err
	}

	if cfg.readOnly {
		return result, nil
	}

	if err := tx.Commit(); err != nil {
		var zero T
		return zero, apperrors.NewStorage("commit", err)
	}
	done = true
	logging.TransactionEvent(ctx, "graph", "commit", time.Since(start), "name", cfg.name)
	return result, nil
}

// Run is Execute for units of work without a result.
func Run(ctx context.Context, s *Store, work func(g *Graph) error, opts ...TxOption) error {
	_, err := Execute(ctx, s, func(g *Graph) (struct{}, error) {
		return struct{}{}, work(g)
	}, opts...)
	return err
}
