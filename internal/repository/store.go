package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore runs units of work in Postgres transactions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InTx implements Store using READ COMMITTED with explicit advisory locks
// and conditional updates for serialization.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = pgTx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(ctx, &postgresTx{tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Codes() CodeRepository {
	return &codeRepository{db: t.tx}
}

func (t *postgresTx) Visits() VisitRepository {
	return &visitRepository{db: t.tx}
}

func (t *postgresTx) Claims() ClaimRepository {
	return &claimRepository{db: t.tx}
}

// Lock takes a transaction-scoped advisory lock; Postgres releases it at
// commit or rollback.
func (t *postgresTx) Lock(ctx context.Context, key string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}
