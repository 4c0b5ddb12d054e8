package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/furniture-reservation/internal/model"
	"github.com/iliyamo/furniture-reservation/internal/queue"
	"github.com/iliyamo/furniture-reservation/internal/repository"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, VersionRetries: 3}
}

type recorder struct {
	mu     sync.Mutex
	events []queue.Event
}

func (r *recorder) Publish(_ context.Context, ev queue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type countingCache struct {
	mu sync.Mutex
	n  int
}

func (c *countingCache) Invalidate(context.Context) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

// faults injects failures into selected repository calls.  Each slice is
// consumed one entry per call; a nil entry lets the call through.
type faults struct {
	mu           sync.Mutex
	create       []error
	settle       []error
	complete     []error
	beforeSettle func()
	beforeTx     func() // runs once, before the next unit of work opens
	staleStatus  int // UpdateStatus calls that report a lost version race
}

func pop(list *[]error) error {
	if len(*list) == 0 {
		return nil
	}
	err := (*list)[0]
	*list = (*list)[1:]
	return err
}

type faultStore struct {
	repository.Store
	f *faults
}

func (s *faultStore) Reservations() repository.ReservationRepository {
	return &faultReservations{ReservationRepository: s.Store.Reservations(), f: s.f}
}

func (s *faultStore) Payments() repository.PaymentRepository {
	return &faultPayments{PaymentRepository: s.Store.Payments(), f: s.f}
}

func (s *faultStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	s.f.mu.Lock()
	hook := s.f.beforeTx
	s.f.beforeTx = nil
	s.f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return s.Store.WithTx(ctx, func(tx repository.Store) error {
		return fn(&faultStore{Store: tx, f: s.f})
	})
}

type faultReservations struct {
	repository.ReservationRepository
	f *faults
}

func (r *faultReservations) Create(ctx context.Context, res *model.Reservation) error {
	r.f.mu.Lock()
	err := pop(&r.f.create)
	r.f.mu.Unlock()
	if err != nil {
		return err
	}
	return r.ReservationRepository.Create(ctx, res)
}

func (r *faultReservations) UpdateStatus(ctx context.Context, id uint64, version int, status string) (bool, error) {
	r.f.mu.Lock()
	stale := r.f.staleStatus > 0
	if stale {
		r.f.staleStatus--
	}
	r.f.mu.Unlock()
	if stale {
		return false, nil
	}
	return r.ReservationRepository.UpdateStatus(ctx, id, version, status)
}

func (r *faultReservations) Settle(ctx context.Context, id uint64, version int, paid decimal.Decimal, ref string) (bool, error) {
	r.f.mu.Lock()
	hook := r.f.beforeSettle
	r.f.beforeSettle = nil
	err := pop(&r.f.settle)
	r.f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return false, err
	}
	return r.ReservationRepository.Settle(ctx, id, version, paid, ref)
}

type faultPayments struct {
	repository.PaymentRepository
	f *faults
}

func (p *faultPayments) UpdateStatusIf(ctx context.Context, id uint64, from, to string) (bool, error) {
	if to == model.PaymentCompleted {
		p.f.mu.Lock()
		err := pop(&p.f.complete)
		p.f.mu.Unlock()
		if err != nil {
			return false, err
		}
	}
	return p.PaymentRepository.UpdateStatusIf(ctx, id, from, to)
}

type env struct {
	mem      *repository.MemoryStore
	store    repository.Store
	faults   *faults
	events   *recorder
	cache    *countingCache
	catalog  *CatalogService
	reserve  *ReservationService
	payments *PaymentService
	recon    *Reconciler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mem := repository.NewMemoryStore()
	f := &faults{}
	store := &faultStore{Store: mem, f: f}
	ev := &recorder{}
	cache := &countingCache{}
	log := zap.NewNop()

	e := &env{
		mem:      mem,
		store:    store,
		faults:   f,
		events:   ev,
		cache:    cache,
		catalog:  NewCatalogService(store, cache, log),
		reserve:  NewReservationService(store, ev, cache, fastRetry(), log),
		payments: NewPaymentService(store, ev, fastRetry(), log),
		recon:    NewReconciler(store, ev, time.Minute, 50, log),
	}
	// Everything is older than the grace period from the reconciler's view.
	e.recon.now = func() time.Time { return time.Now().Add(time.Hour) }
	return e
}

func (e *env) item(t *testing.T, title, price string, stock int) *model.CatalogItem {
	t.Helper()
	it, err := e.catalog.Create(context.Background(), ItemInput{
		Title: title, Price: decimal.RequireFromString(price), Stock: stock,
	})
	require.NoError(t, err)
	return it
}

func (e *env) stock(t *testing.T, id uint64) int {
	t.Helper()
	it, err := e.mem.Catalog().GetByID(context.Background(), id)
	require.NoError(t, err)
	return it.Stock
}

func (e *env) reservation(t *testing.T, lines ...LineRequest) *model.Reservation {
	t.Helper()
	res, err := e.reserve.CreateReservation(context.Background(), CreateReservationInput{
		CustomerName: "Ann Perera",
		Address:      "12 Lake Rd",
		NationalID:   "901234567V",
		Items:        lines,
	})
	require.NoError(t, err)
	return res
}
