package postgres

import (
	"context"
	"errors"

	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const maxTxAttempts = 3

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries implements orders.Tx on top of a pool or a transaction.
type queries struct{ db dbtx }

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewStore(pool *pgxpool.Pool, log *zap.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// WithTx runs fn in a READ COMMITTED transaction. A transaction aborted by a
// serialization failure or deadlock never applied anything, so it is re-run
// up to maxTxAttempts times. Any other error is returned as is.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !retryable(err) {
			return err
		}
		s.log.Warn("transaction aborted, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &queries{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ orders.Store = (*Store)(nil)
var _ orders.Tx = (*queries)(nil)
