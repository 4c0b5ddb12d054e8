package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/furniture-reservation/internal/model"
)

const (
	paymentColumns = `id, reservation_id, amount, method, transaction_ref, status, created_at, updated_at`

	qPaymentInsert      = `INSERT INTO payments (reservation_id, amount, method, transaction_ref, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	qPaymentByID        = `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	qPaymentsFor        = `SELECT ` + paymentColumns + ` FROM payments WHERE reservation_id = ? ORDER BY created_at DESC, id DESC`
	qPaymentStatusIf    = `UPDATE payments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	qPaymentsPendingOld = `SELECT ` + paymentColumns + ` FROM payments WHERE status = ? AND created_at < ? ORDER BY created_at, id LIMIT ?`
)

// PaymentRepo is the MySQL payment ledger.
type PaymentRepo struct {
	db dbtx
}

// NewPaymentRepo returns a PaymentRepo bound to db.
func NewPaymentRepo(db dbtx) *PaymentRepo { return &PaymentRepo{db: db} }

func scanPayment(s rowScanner) (model.Payment, error) {
	var p model.Payment
	err := s.Scan(&p.ID, &p.ReservationID, &p.Amount, &p.Method, &p.TransactionRef, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Create appends a ledger record.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	now := nowUTC()
	res, err := r.db.ExecContext(ctx, qPaymentInsert,
		p.ReservationID, p.Amount, p.Method, p.TransactionRef, p.Status, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

// GetByID returns ErrNotFound when the record does not exist.
func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, qPaymentByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByReservation returns the ledger of one reservation, newest first.
func (r *PaymentRepo) ListByReservation(ctx context.Context, reservationID uint64) ([]model.Payment, error) {
	return r.list(ctx, qPaymentsFor, reservationID)
}

// ListPendingBefore returns up to limit pending records created before
// the cutoff, oldest first.
func (r *PaymentRepo) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]model.Payment, error) {
	return r.list(ctx, qPaymentsPendingOld, model.PaymentPending, before.UTC(), limit)
}

func (r *PaymentRepo) list(ctx context.Context, q string, args ...any) ([]model.Payment, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateStatusIf moves a record from one status to another and reports
// false when the record is not currently in status from.
func (r *PaymentRepo) UpdateStatusIf(ctx context.Context, id uint64, from, to string) (bool, error) {
	res, err := r.db.ExecContext(ctx, qPaymentStatusIf, to, nowUTC(), id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
