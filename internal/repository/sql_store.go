package repository

import (
	"context"
	"database/sql"
	"strings"
)

// dbtx is the subset of *sql.DB and *sql.Tx the repositories use, so the
// same repository code runs inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore is the MySQL-backed Store.
type SQLStore struct {
	db *sql.DB
	q  dbtx
	tx *sql.Tx
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db, q: db} }

// DB exposes the underlying handle (health checks, migrations).
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Catalog() CatalogRepository          { return NewCatalogRepo(s.q) }
func (s *SQLStore) Reservations() ReservationRepository { return NewReservationRepo(s.q) }
func (s *SQLStore) Payments() PaymentRepository         { return NewPaymentRepo(s.q) }

// WithTx runs fn inside a database transaction.  Nested calls reuse the
// outer transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&SQLStore{db: s.db, q: tx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Close closes the database handle.  Calling Close on a transactional view
// is a no-op.
func (s *SQLStore) Close() error {
	if s.tx != nil {
		return nil
	}
	return s.db.Close()
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
