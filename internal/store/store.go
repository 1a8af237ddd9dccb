package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Store bundles the connection pool and named queries. All methods take an
// explicit tenant identifier; nothing here infers tenancy from ambient
// state.
type Store struct {
	db *sqlx.DB
	q  *Queries
}

// New creates a Store over an open database handle.
func New(db *sqlx.DB) (*Store, error) {
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, q: q}, nil
}

// DB exposes the underlying handle for health checks and migration tooling.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Queries exposes the named-query layer; the auth package consumes it
// through its own narrow interface.
func (s *Store) Queries() *Queries {
	return s.q
}

// Tx is one unit of work. The Runner opens one Tx per (event, rule) pair so
// the execution-log insert, pending-action writes, and status finalization
// commit or roll back together.
type Tx struct {
	tx *sqlx.Tx
	q  *Queries
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{tx: tx, q: s.q}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
