package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is a *sql.Tx that can collect callbacks to run once the transaction has
// committed. Hooks never run after a rollback.
type Tx struct {
	*sql.Tx
	onCommit []func(ctx context.Context)
}

// OnCommit registers fn to run after a successful commit, in registration order.
func (tx *Tx) OnCommit(fn func(ctx context.Context)) {
	tx.onCommit = append(tx.onCommit, fn)
}

// WithTx runs fn inside a transaction. A returned error or a panic rolls the
// transaction back; otherwise it is committed and the OnCommit hooks run
// synchronously on the caller's goroutine.
func WithTx(ctx context.Context, conn *sql.DB, fn func(tx *Tx) error) (err error) {
	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	tx := &Tx{Tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, hook := range tx.onCommit {
		hook(ctx)
	}
	return nil
}
