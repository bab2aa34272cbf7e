package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Tx is the only capability handed to a transactional callback: run a
// statement on the transaction's connection and get its rows back.
type Tx interface {
	Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
}

// TxFunc is the body of a transaction. Returning an error rolls back every
// statement it issued.
type TxFunc func(ctx context.Context, tx Tx) error

type connTx struct {
	tx pgx.Tx
}

func (c *connTx) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	return QueryRows(ctx, c.tx, sql, args...)
}

// ExecuteQuery runs one statement on a dedicated connection and returns its
// rows. The connection goes back to the pool whether or not the statement
// succeeded.
func (s *Store) ExecuteQuery(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return QueryRows(ctx, conn, sql, args...)
}

// ExecuteTransaction runs fn between BEGIN and COMMIT on one connection.
// If fn returns an error (or panics) the transaction is rolled back; a
// failing ROLLBACK is logged and swallowed so the caller sees fn's error.
func (s *Store) ExecuteTransaction(ctx context.Context, fn TxFunc) error {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	return s.runTx(ctx, tx, fn)
}

// runTx drives fn on an open transaction and ends it with COMMIT or
// ROLLBACK.
func (s *Store) runTx(ctx context.Context, tx pgx.Tx, fn TxFunc) error {
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, &connTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
