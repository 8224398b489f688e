// Package postgres implements the repository contracts on PostgreSQL via
// pgx. All repositories share one pgxpool; the pool is owned by the caller
// (it is also handed to River) and closed there.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"stocklane.io/stocklane/internal/repository"
)

//go:embed schema.sql
var schema string

// Store hands out repositories bound to a shared pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema. Idempotent; development convenience
// only.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Stores returns the repository bundle backed by this store.
func (s *Store) Stores() repository.Stores {
	return repository.Stores{
		Nodes:       &NodeRepository{pool: s.pool},
		Assignments: &AssignmentRepository{pool: s.pool},
		StockCards:  &StockCardRepository{pool: s.pool},
		Events:      &EventRepository{pool: s.pool},
		Entries:     &EntryRepository{pool: s.pool},
	}
}

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
