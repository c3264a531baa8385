// Package store holds the hand-written DAOs backing every persisted table
// described in the engine's schema. Each file owns one table (or a closely
// related pair) and exposes the operations the rest of the engine needs;
// none of them leak database/sql or sqlx types past their own signatures.
package store

import (
	"github.com/jmoiron/sqlx"
)

// Store is the shared handle every DAO is built from. It is deliberately a
// thin wrapper: callers get one Store per process and pass it to each DAO
// constructor, mirroring how the engine's other components are held as
// fields of the application struct rather than looked up globally.
type Store struct {
	db *sqlx.DB
}

// New wraps an already-connected, already-migrated database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for components (like the Self-Preservation
// handoff manager) that need a transaction spanning more than one DAO.
func (s *Store) DB() *sqlx.DB {
	return s.db
}
