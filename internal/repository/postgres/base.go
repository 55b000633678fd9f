package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const defaultQueryTimeout = 5 * time.Second

// BaseRepository carries the connection and the statement deadline shared
// by the repositories.
type BaseRepository struct {
	db           *sqlx.DB
	queryTimeout time.Duration
}

func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db, queryTimeout: defaultQueryTimeout}
}

func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// bound applies the statement deadline unless ctx already ends sooner.
func (r *BaseRepository) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= r.queryTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

// WithTx runs fn in one transaction. Anything short of a successful commit
// rolls back, a panic in fn included.
func (r *BaseRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
