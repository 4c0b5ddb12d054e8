package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/furniture-reservation/internal/model"
)

const (
	reservationColumns = `id, customer_name, address, national_id, total_quantity, total_price, status, paid_amount, payment_ref, version, created_at, updated_at`

	qReservationInsert = `INSERT INTO reservations (customer_name, address, national_id, total_quantity, total_price, status, paid_amount, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	qReservationItems  = `INSERT INTO reservation_items (reservation_id, position, item_id, quantity, unit_price) VALUES `
	qReservationByID   = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	qReservationList   = `SELECT ` + reservationColumns + ` FROM reservations ORDER BY created_at DESC, id DESC`
	qReservationByNID  = `SELECT ` + reservationColumns + ` FROM reservations WHERE national_id = ? ORDER BY created_at DESC, id DESC`
	qLineItemsFor      = `SELECT reservation_id, item_id, quantity, unit_price FROM reservation_items WHERE reservation_id IN (`

	qReservationStatus = `UPDATE reservations SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	qReservationSettle = `UPDATE reservations SET paid_amount = ?, status = ?, payment_ref = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ? AND status <> ? AND payment_ref IS NULL`
)

// ReservationRepo is the MySQL implementation of ReservationRepository.
// Line items live in reservation_items, ordered by position; item_id is
// deliberately not a foreign key so catalog deletes never cascade.
type ReservationRepo struct {
	db dbtx
}

// NewReservationRepo returns a ReservationRepo bound to db.
func NewReservationRepo(db dbtx) *ReservationRepo { return &ReservationRepo{db: db} }

func scanReservation(s rowScanner) (model.Reservation, error) {
	var (
		r   model.Reservation
		ref sql.NullString
	)
	err := s.Scan(&r.ID, &r.CustomerName, &r.Address, &r.NationalID, &r.TotalQuantity, &r.TotalPrice,
		&r.Status, &r.PaidAmount, &ref, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if ref.Valid {
		r.PaymentRef = ref.String
	}
	return r, err
}

// Create inserts the reservation and its line items.  The caller runs it
// inside a transaction so both inserts commit together.  ID, Version and
// timestamps are populated on res.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	now := nowUTC()
	if res.Version == 0 {
		res.Version = 1
	}
	result, err := r.db.ExecContext(ctx, qReservationInsert,
		res.CustomerName, res.Address, res.NationalID, res.TotalQuantity, res.TotalPrice,
		res.Status, res.PaidAmount, res.Version, now, now)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	res.CreatedAt, res.UpdatedAt = now, now

	if len(res.LineItems) == 0 {
		return nil
	}
	query := qReservationItems
	args := make([]any, 0, len(res.LineItems)*5)
	for i, li := range res.LineItems {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, res.ID, i, li.ItemID, li.Quantity, li.UnitPrice)
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// GetByID returns ErrNotFound when the reservation does not exist.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, qReservationByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := []model.Reservation{res}
	if err := r.attachLineItems(ctx, out); err != nil {
		return nil, err
	}
	return &out[0], nil
}

// List returns all reservations, newest first.
func (r *ReservationRepo) List(ctx context.Context) ([]model.Reservation, error) {
	return r.query(ctx, qReservationList)
}

// ListByNationalID returns the reservations of one customer, newest first.
// No match yields an empty slice.
func (r *ReservationRepo) ListByNationalID(ctx context.Context, nationalID string) ([]model.Reservation, error) {
	return r.query(ctx, qReservationByNID, nationalID)
}

func (r *ReservationRepo) query(ctx context.Context, q string, args ...any) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := []model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if err := r.attachLineItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachLineItems loads the line items of every reservation in one query
// and assigns them in position order.
func (r *ReservationRepo) attachLineItems(ctx context.Context, list []model.Reservation) error {
	if len(list) == 0 {
		return nil
	}
	index := make(map[uint64]int, len(list))
	args := make([]any, len(list))
	for i := range list {
		index[list[i].ID] = i
		args[i] = list[i].ID
		list[i].LineItems = []model.LineItem{}
	}
	rows, err := r.db.QueryContext(ctx, qLineItemsFor+placeholders(len(list))+`) ORDER BY reservation_id, position`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			resID uint64
			li    model.LineItem
		)
		if err := rows.Scan(&resID, &li.ItemID, &li.Quantity, &li.UnitPrice); err != nil {
			return err
		}
		if i, ok := index[resID]; ok {
			list[i].LineItems = append(list[i].LineItems, li)
		}
	}
	return rows.Err()
}

// UpdateStatus sets the status when the stored version still equals
// version.  It reports false when the row changed or does not exist.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, id uint64, version int, status string) (bool, error) {
	return r.guarded(ctx, qReservationStatus, status, nowUTC(), id, version)
}

// Settle marks the reservation fully paid by paymentRef.
func (r *ReservationRepo) Settle(ctx context.Context, id uint64, version int, paid decimal.Decimal, paymentRef string) (bool, error) {
	return r.guarded(ctx, qReservationSettle,
		paid, model.StatusCompleted, paymentRef, nowUTC(), id, version, model.StatusCancelled)
}

func (r *ReservationRepo) guarded(ctx context.Context, q string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
