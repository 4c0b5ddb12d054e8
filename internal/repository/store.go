package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/furniture-reservation/internal/model"
)

// CatalogRepository persists catalog items.  DecrementStock and
// IncrementStock are single conditional updates: they either apply
// completely or report false without touching the row.
type CatalogRepository interface {
	Create(ctx context.Context, item *model.CatalogItem) error
	GetByID(ctx context.Context, id uint64) (*model.CatalogItem, error)
	GetByIDs(ctx context.Context, ids []uint64) (map[uint64]model.CatalogItem, error)
	List(ctx context.Context) ([]model.CatalogItem, error)
	Update(ctx context.Context, item *model.CatalogItem) error
	Delete(ctx context.Context, id uint64) error
	DeleteAll(ctx context.Context) (int64, error)

	// DecrementStock subtracts qty only if stock >= qty at apply time.
	DecrementStock(ctx context.Context, id uint64, qty int) (bool, error)
	// IncrementStock adds qty; false means the item no longer exists.
	IncrementStock(ctx context.Context, id uint64, qty int) (bool, error)
}

// ReservationRepository persists reservations and their line items.
// Every write after creation is guarded by the version the caller read;
// a false result means the row changed (or vanished) in between.
type ReservationRepository interface {
	Create(ctx context.Context, r *model.Reservation) error
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	List(ctx context.Context) ([]model.Reservation, error)
	ListByNationalID(ctx context.Context, nationalID string) ([]model.Reservation, error)

	UpdateStatus(ctx context.Context, id uint64, version int, status string) (bool, error)
	// Settle records full payment: paid amount, completed status and the
	// settling transaction reference.  It refuses cancelled or already
	// settled reservations.
	Settle(ctx context.Context, id uint64, version int, paid decimal.Decimal, paymentRef string) (bool, error)
}

// PaymentRepository is the payment ledger.
type PaymentRepository interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByID(ctx context.Context, id uint64) (*model.Payment, error)
	ListByReservation(ctx context.Context, reservationID uint64) ([]model.Payment, error)
	UpdateStatusIf(ctx context.Context, id uint64, from, to string) (bool, error)
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]model.Payment, error)
}

// Store bundles the repositories and provides the unit of work.  Inside
// WithTx, fn receives a Store whose repositories share one transaction;
// returning an error from fn undoes every write made through it.
type Store interface {
	Catalog() CatalogRepository
	Reservations() ReservationRepository
	Payments() PaymentRepository
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Close() error
}
