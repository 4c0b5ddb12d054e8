package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/furniture-reservation/internal/model"
)

// MemoryStore keeps everything in process memory.  Single operations are
// atomic under one mutex.  Transactions are serialized against each other
// and undone through a journal of compensating writes when fn fails.
type MemoryStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	items        map[uint64]model.CatalogItem
	reservations map[uint64]model.Reservation
	payments     map[uint64]model.Payment
	refs         map[string]uint64

	nextItem, nextReservation, nextPayment uint64

	now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:        map[uint64]model.CatalogItem{},
		reservations: map[uint64]model.Reservation{},
		payments:     map[uint64]model.Payment{},
		refs:         map[string]uint64{},
		now:          nowUTC,
	}
}

// SetClock replaces the timestamp source; tests use it to age records.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) Catalog() CatalogRepository          { return &memCatalog{s: s} }
func (s *MemoryStore) Reservations() ReservationRepository { return &memReservations{s: s} }
func (s *MemoryStore) Payments() PaymentRepository         { return &memPayments{s: s} }
func (s *MemoryStore) Close() error                        { return nil }

// WithTx runs fn against a transactional view of the store.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{s: s, j: &journal{}}
	if err := fn(tx); err != nil {
		s.mu.Lock()
		tx.j.rollback()
		s.mu.Unlock()
		return err
	}
	return nil
}

// journal records how to undo each write made inside a transaction.
// Undo functions run with s.mu held.
type journal struct {
	undo []func()
}

func (j *journal) record(f func()) {
	if j != nil {
		j.undo = append(j.undo, f)
	}
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

type memTx struct {
	s *MemoryStore
	j *journal
}

func (t *memTx) Catalog() CatalogRepository          { return &memCatalog{s: t.s, j: t.j} }
func (t *memTx) Reservations() ReservationRepository { return &memReservations{s: t.s, j: t.j} }
func (t *memTx) Payments() PaymentRepository         { return &memPayments{s: t.s, j: t.j} }
func (t *memTx) Close() error                        { return nil }

// WithTx on a transactional view joins the running transaction.
func (t *memTx) WithTx(_ context.Context, fn func(tx Store) error) error { return fn(t) }

// ---- catalog ----

type memCatalog struct {
	s *MemoryStore
	j *journal
}

func (c *memCatalog) Create(_ context.Context, item *model.CatalogItem) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextItem++
	now := s.now()
	item.ID = s.nextItem
	item.CreatedAt, item.UpdatedAt = now, now
	s.items[item.ID] = *item
	id := item.ID
	c.j.record(func() { delete(s.items, id) })
	return nil
}

func (c *memCatalog) GetByID(_ context.Context, id uint64) (*model.CatalogItem, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	it, ok := c.s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &it, nil
}

func (c *memCatalog) GetByIDs(_ context.Context, ids []uint64) (map[uint64]model.CatalogItem, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	out := make(map[uint64]model.CatalogItem, len(ids))
	for _, id := range ids {
		if it, ok := c.s.items[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (c *memCatalog) List(_ context.Context) ([]model.CatalogItem, error) {
	c.s.mu.Lock()
	out := make([]model.CatalogItem, 0, len(c.s.items))
	for _, it := range c.s.items {
		out = append(out, it)
	}
	c.s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (c *memCatalog) Update(_ context.Context, item *model.CatalogItem) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.items[item.ID]
	if !ok {
		return ErrNotFound
	}
	item.CreatedAt = prev.CreatedAt
	item.UpdatedAt = s.now()
	s.items[item.ID] = *item
	c.j.record(func() { s.items[prev.ID] = prev })
	return nil
}

func (c *memCatalog) Delete(_ context.Context, id uint64) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	c.j.record(func() { s.items[id] = prev })
	return nil
}

func (c *memCatalog) DeleteAll(_ context.Context) (int64, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.items
	s.items = map[uint64]model.CatalogItem{}
	c.j.record(func() { s.items = prev })
	return int64(len(prev)), nil
}

func (c *memCatalog) DecrementStock(_ context.Context, id uint64, qty int) (bool, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.Stock < qty {
		return false, nil
	}
	it.Stock -= qty
	it.UpdatedAt = s.now()
	s.items[id] = it
	c.j.record(func() {
		if cur, ok := s.items[id]; ok {
			cur.Stock += qty
			s.items[id] = cur
		}
	})
	return true, nil
}

func (c *memCatalog) IncrementStock(_ context.Context, id uint64, qty int) (bool, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return false, nil
	}
	it.Stock += qty
	it.UpdatedAt = s.now()
	s.items[id] = it
	c.j.record(func() {
		if cur, ok := s.items[id]; ok {
			cur.Stock -= qty
			s.items[id] = cur
		}
	})
	return true, nil
}

// ---- reservations ----

type memReservations struct {
	s *MemoryStore
	j *journal
}

func (r *memReservations) Create(_ context.Context, res *model.Reservation) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReservation++
	now := s.now()
	res.ID = s.nextReservation
	if res.Version == 0 {
		res.Version = 1
	}
	res.CreatedAt, res.UpdatedAt = now, now
	stored := res.Clone()
	for i := range stored.LineItems {
		stored.LineItems[i].Item = nil
	}
	s.reservations[res.ID] = stored
	id := res.ID
	r.j.record(func() { delete(s.reservations, id) })
	return nil
}

func (r *memReservations) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := res.Clone()
	return &out, nil
}

func (r *memReservations) List(_ context.Context) ([]model.Reservation, error) {
	return r.filter(func(model.Reservation) bool { return true }), nil
}

func (r *memReservations) ListByNationalID(_ context.Context, nationalID string) ([]model.Reservation, error) {
	return r.filter(func(res model.Reservation) bool { return res.NationalID == nationalID }), nil
}

func (r *memReservations) filter(keep func(model.Reservation) bool) []model.Reservation {
	r.s.mu.Lock()
	out := []model.Reservation{}
	for _, res := range r.s.reservations {
		if keep(res) {
			out = append(out, res.Clone())
		}
	}
	r.s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *memReservations) UpdateStatus(_ context.Context, id uint64, version int, status string) (bool, error) {
	return r.guarded(id, version, func(res *model.Reservation) bool {
		res.Status = status
		return true
	})
}

func (r *memReservations) Settle(_ context.Context, id uint64, version int, paid decimal.Decimal, paymentRef string) (bool, error) {
	return r.guarded(id, version, func(res *model.Reservation) bool {
		if res.Status == model.StatusCancelled || res.PaymentRef != "" {
			return false
		}
		res.PaidAmount = paid
		res.Status = model.StatusCompleted
		res.PaymentRef = paymentRef
		return true
	})
}

// guarded applies mutate when the stored version equals version, then
// bumps the version.  mutate may refuse by returning false.
func (r *memReservations) guarded(id uint64, version int, mutate func(*model.Reservation) bool) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.reservations[id]
	if !ok || prev.Version != version {
		return false, nil
	}
	next := prev.Clone()
	if !mutate(&next) {
		return false, nil
	}
	next.Version++
	next.UpdatedAt = s.now()
	s.reservations[id] = next
	r.j.record(func() { s.reservations[id] = prev })
	return true, nil
}

// ---- payments ----

type memPayments struct {
	s *MemoryStore
	j *journal
}

func (p *memPayments) Create(_ context.Context, pay *model.Payment) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.refs[pay.TransactionRef]; dup {
		return fmt.Errorf("transaction ref %q: %w", pay.TransactionRef, ErrConflict)
	}
	s.nextPayment++
	now := s.now()
	pay.ID = s.nextPayment
	pay.CreatedAt, pay.UpdatedAt = now, now
	s.payments[pay.ID] = *pay
	s.refs[pay.TransactionRef] = pay.ID
	id, ref := pay.ID, pay.TransactionRef
	p.j.record(func() {
		delete(s.payments, id)
		delete(s.refs, ref)
	})
	return nil
}

func (p *memPayments) GetByID(_ context.Context, id uint64) (*model.Payment, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	pay, ok := p.s.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &pay, nil
}

func (p *memPayments) ListByReservation(_ context.Context, reservationID uint64) ([]model.Payment, error) {
	p.s.mu.Lock()
	out := []model.Payment{}
	for _, pay := range p.s.payments {
		if pay.ReservationID == reservationID {
			out = append(out, pay)
		}
	}
	p.s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (p *memPayments) UpdateStatusIf(_ context.Context, id uint64, from, to string) (bool, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.payments[id]
	if !ok || prev.Status != from {
		return false, nil
	}
	next := prev
	next.Status = to
	next.UpdatedAt = s.now()
	s.payments[id] = next
	p.j.record(func() { s.payments[id] = prev })
	return true, nil
}

func (p *memPayments) ListPendingBefore(_ context.Context, before time.Time, limit int) ([]model.Payment, error) {
	p.s.mu.Lock()
	out := []model.Payment{}
	for _, pay := range p.s.payments {
		if pay.Status == model.PaymentPending && pay.CreatedAt.Before(before) {
			out = append(out, pay)
		}
	}
	p.s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
