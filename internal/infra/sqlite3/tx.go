package sqlite3

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type TxFunc = func(*sqlx.Tx) error

// InTx runs fn inside a transaction, rolling back on error or panic and
// committing otherwise.
func (d *DB) InTx(ctx context.Context, fn TxFunc) error {
	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback() // Ignore rollback error during panic
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("db transaction error: %v, rollback error: %w", err, rbErr)
		}
		return fmt.Errorf("db transaction error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db commit transaction: %w", err)
	}

	return nil
}
