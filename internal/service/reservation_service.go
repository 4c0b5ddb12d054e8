package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/furniture-reservation/internal/apperr"
	"github.com/iliyamo/furniture-reservation/internal/metrics"
	"github.com/iliyamo/furniture-reservation/internal/model"
	"github.com/iliyamo/furniture-reservation/internal/queue"
	"github.com/iliyamo/furniture-reservation/internal/repository"
)

// LineRequest asks for quantity units of one catalog item.
type LineRequest struct {
	ItemID   uint64
	Quantity int
}

// CreateReservationInput is the payload of CreateReservation.
type CreateReservationInput struct {
	CustomerName string
	Address      string
	NationalID   string
	Items        []LineRequest
}

func (in *CreateReservationInput) normalize() error {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.Address = strings.TrimSpace(in.Address)
	in.NationalID = strings.TrimSpace(in.NationalID)
	switch {
	case in.CustomerName == "":
		return apperr.New(apperr.InvalidArgument, "customer name is required")
	case in.Address == "":
		return apperr.New(apperr.InvalidArgument, "address is required")
	case in.NationalID == "":
		return apperr.New(apperr.InvalidArgument, "national id is required")
	case len(in.Items) == 0:
		return apperr.New(apperr.InvalidArgument, "at least one furniture item is required")
	}
	seen := make(map[uint64]bool, len(in.Items))
	for i, li := range in.Items {
		if li.ItemID == 0 {
			return apperr.New(apperr.InvalidArgument, "items[%d]: item id is required", i)
		}
		if li.Quantity < 1 {
			return apperr.New(apperr.InvalidArgument, "items[%d]: quantity must be at least 1", i)
		}
		if seen[li.ItemID] {
			return apperr.New(apperr.InvalidArgument, "items[%d]: item %d is listed more than once", i, li.ItemID)
		}
		seen[li.ItemID] = true
	}
	return nil
}

// ReservationService creates reservations and moves them through their
// statuses while keeping catalog stock consistent.
type ReservationService struct {
	store  repository.Store
	events EventPublisher
	cache  CacheInvalidator
	retry  RetryPolicy
	log    *zap.Logger
	now    func() time.Time
}

// NewReservationService wires the service.  events and cache may be nil.
func NewReservationService(store repository.Store, events EventPublisher, cache CacheInvalidator, retry RetryPolicy, log *zap.Logger) *ReservationService {
	if events == nil {
		events = queue.Nop{}
	}
	if cache == nil {
		cache = nopInvalidator{}
	}
	return &ReservationService{
		store:  store,
		events: events,
		cache:  cache,
		retry:  retry,
		log:    log.Named("reservations"),
		now:    time.Now,
	}
}

// CreateReservation validates the request against one catalog snapshot,
// then decrements stock for every line and persists the reservation in a
// single unit of work.  Either all decrements and the insert commit, or
// none do.
func (s *ReservationService) CreateReservation(ctx context.Context, in CreateReservationInput) (*model.Reservation, error) {
	res, err := s.create(ctx, in)
	if err != nil {
		metrics.ReservationsRejected.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, err
	}
	metrics.ReservationsCreated.Inc()
	s.cache.Invalidate(ctx)
	s.log.Info("reservation created",
		zap.Uint64("reservation_id", res.ID),
		zap.Int("total_quantity", res.TotalQuantity),
		zap.String("total_price", res.TotalPrice.StringFixed(2)))
	publish(ctx, s.events, s.log, queue.NewReservationCreated(*res, s.now()))
	return res, nil
}

func (s *ReservationService) create(ctx context.Context, in CreateReservationInput) (*model.Reservation, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	ids := make([]uint64, len(in.Items))
	for i, li := range in.Items {
		ids[i] = li.ItemID
	}
	snapshot, err := s.store.Catalog().GetByIDs(ctx, ids)
	if err != nil {
		return nil, internal(s.log, err, "load furniture")
	}
	// Lines are checked in input order; the first failing line decides.
	for _, li := range in.Items {
		it, ok := snapshot[li.ItemID]
		if !ok {
			return nil, apperr.New(apperr.NotFound, "furniture %d not found", li.ItemID).
				WithDetails(map[string]uint64{"item_id": li.ItemID})
		}
		if it.Stock < li.Quantity {
			return nil, apperr.Shortage(it.ID, it.Title, li.Quantity, it.Stock)
		}
	}

	// Prices are locked from the snapshot.
	lines := make([]model.LineItem, len(in.Items))
	total := decimal.Zero
	qty := 0
	for i, li := range in.Items {
		price := snapshot[li.ItemID].Price
		lines[i] = model.LineItem{ItemID: li.ItemID, Quantity: li.Quantity, UnitPrice: price}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(li.Quantity))))
		qty += li.Quantity
	}

	var created model.Reservation
	err = s.retry.Do(ctx, "create_reservation", s.log, func() error {
		return s.store.WithTx(ctx, func(tx repository.Store) error {
			for _, li := range lines {
				ok, err := tx.Catalog().DecrementStock(ctx, li.ItemID, li.Quantity)
				if err != nil {
					return err
				}
				if !ok {
					return s.rejectedDecrement(ctx, tx, li)
				}
			}
			created = model.Reservation{
				CustomerName:  in.CustomerName,
				Address:       in.Address,
				NationalID:    in.NationalID,
				LineItems:     append([]model.LineItem(nil), lines...),
				TotalQuantity: qty,
				TotalPrice:    total,
				Status:        model.StatusPending,
				PaidAmount:    decimal.Zero,
				Version:       1,
			}
			return tx.Reservations().Create(ctx, &created)
		})
	})
	if err != nil {
		return nil, internal(s.log, err, "create reservation")
	}

	for i := range created.LineItems {
		created.LineItems[i].Item = snapshot[created.LineItems[i].ItemID].Projection()
	}
	return &created, nil
}

// rejectedDecrement explains why a conditional decrement did not apply:
// the item vanished or another reservation took the stock first.
func (s *ReservationService) rejectedDecrement(ctx context.Context, tx repository.Store, li model.LineItem) error {
	cur, err := tx.Catalog().GetByID(ctx, li.ItemID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.NotFound, "furniture %d not found", li.ItemID).
			WithDetails(map[string]uint64{"item_id": li.ItemID})
	}
	if err != nil {
		return err
	}
	return apperr.Shortage(cur.ID, cur.Title, li.Quantity, cur.Stock)
}

// ListReservations returns every reservation, newest first.
func (s *ReservationService) ListReservations(ctx context.Context) ([]model.Reservation, error) {
	list, err := s.store.Reservations().List(ctx)
	if err != nil {
		return nil, internal(s.log, err, "list reservations")
	}
	if err := attachProjections(ctx, s.store.Catalog(), list); err != nil {
		return nil, internal(s.log, err, "resolve furniture")
	}
	return list, nil
}

// GetReservation returns one reservation with its furniture projections.
func (s *ReservationService) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := s.store.Reservations().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "reservation %d not found", id)
	}
	if err != nil {
		return nil, internal(s.log, err, "get reservation")
	}
	one := []model.Reservation{*res}
	if err := attachProjections(ctx, s.store.Catalog(), one); err != nil {
		return nil, internal(s.log, err, "resolve furniture")
	}
	return &one[0], nil
}

// ReservationsByNationalID returns the customer's reservations, newest
// first.  No match is an empty list.
func (s *ReservationService) ReservationsByNationalID(ctx context.Context, nationalID string) ([]model.Reservation, error) {
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "national id is required")
	}
	list, err := s.store.Reservations().ListByNationalID(ctx, nationalID)
	if err != nil {
		return nil, internal(s.log, err, "list reservations")
	}
	if err := attachProjections(ctx, s.store.Catalog(), list); err != nil {
		return nil, internal(s.log, err, "resolve furniture")
	}
	return list, nil
}

// UpdateStatus moves a reservation to status.  Setting the current status
// again changes nothing.  Cancelled is terminal.  Entering cancelled
// returns every line's quantity to stock, once.
func (s *ReservationService) UpdateStatus(ctx context.Context, id uint64, status string) (*model.Reservation, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !model.ValidStatus(status) {
		return nil, apperr.New(apperr.InvalidArgument, "invalid status %q", status)
	}

	var (
		out      *model.Reservation
		from     string
		changed  bool
		restored bool
		err      error
	)
	for attempt := 1; ; attempt++ {
		err = s.retry.Do(ctx, "update_status", s.log, func() error {
			return s.store.WithTx(ctx, func(tx repository.Store) error {
				cur, err := tx.Reservations().GetByID(ctx, id)
				if errors.Is(err, repository.ErrNotFound) {
					return apperr.New(apperr.NotFound, "reservation %d not found", id)
				}
				if err != nil {
					return err
				}
				from, changed, restored = cur.Status, false, false
				if cur.Status == status {
					out = cur
					return nil
				}
				if cur.Status == model.StatusCancelled {
					return apperr.New(apperr.Conflict, "reservation %d is cancelled", id)
				}
				if status == model.StatusCancelled {
					if err := s.restoreStock(ctx, tx, cur); err != nil {
						return err
					}
					restored = true
				}
				ok, err := tx.Reservations().UpdateStatus(ctx, id, cur.Version, status)
				if err != nil {
					return err
				}
				if !ok {
					return repository.ErrConflict
				}
				if out, err = tx.Reservations().GetByID(ctx, id); err != nil {
					return err
				}
				changed = true
				return nil
			})
		})
		if !errors.Is(err, repository.ErrConflict) {
			break
		}
		if attempt >= s.retry.versionRetries() {
			return nil, apperr.Wrap(apperr.Conflict, err, "reservation %d was modified concurrently, try again", id)
		}
		metrics.StorageRetries.WithLabelValues("update_status_version").Inc()
		s.log.Debug("version conflict, re-reading", zap.Uint64("reservation_id", id), zap.Int("attempt", attempt))
	}
	if err != nil {
		return nil, internal(s.log, err, "update reservation status")
	}

	if changed {
		metrics.StatusChanges.WithLabelValues(status).Inc()
		if restored {
			s.cache.Invalidate(ctx)
		}
		s.log.Info("reservation status changed",
			zap.Uint64("reservation_id", id), zap.String("from", from), zap.String("to", status),
			zap.Bool("stock_restored", restored))
		publish(ctx, s.events, s.log, queue.NewStatusChanged(id, from, status, restored, s.now()))
	}

	one := []model.Reservation{*out}
	if err := attachProjections(ctx, s.store.Catalog(), one); err != nil {
		return nil, internal(s.log, err, "resolve furniture")
	}
	return &one[0], nil
}

// restoreStock increments stock for every line.  Items deleted since the
// reservation was made are skipped.
func (s *ReservationService) restoreStock(ctx context.Context, tx repository.Store, r *model.Reservation) error {
	for _, li := range r.LineItems {
		ok, err := tx.Catalog().IncrementStock(ctx, li.ItemID, li.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Warn("furniture gone, stock not restored",
				zap.Uint64("reservation_id", r.ID), zap.Uint64("item_id", li.ItemID), zap.Int("quantity", li.Quantity))
		}
	}
	return nil
}
