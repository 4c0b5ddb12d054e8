package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/furniture-reservation/internal/apperr"
	"github.com/iliyamo/furniture-reservation/internal/metrics"
	"github.com/iliyamo/furniture-reservation/internal/model"
	"github.com/iliyamo/furniture-reservation/internal/queue"
	"github.com/iliyamo/furniture-reservation/internal/repository"
)

// PaymentResult is returned by ProcessPayment.
type PaymentResult struct {
	Payment     model.Payment     `json:"payment"`
	Reservation model.Reservation `json:"reservation"`
}

// NewTransactionRef returns a fresh ledger reference.
func NewTransactionRef() string { return "txn_" + uuid.NewString() }

// errSettleLost means the guarded settle matched no row.
var errSettleLost = errors.New("settle guard lost")

// PaymentService settles reservations and keeps the payment ledger.
//
// Settlement is a saga over three writes: a pending ledger record, the
// guarded settle of the reservation, and the completion of the record.
// A crash between them leaves a pending record that the Reconciler
// resolves.
type PaymentService struct {
	store  repository.Store
	events EventPublisher
	retry  RetryPolicy
	log    *zap.Logger
	now    func() time.Time
	newRef func() string
}

// NewPaymentService wires the service.  events may be nil.
func NewPaymentService(store repository.Store, events EventPublisher, retry RetryPolicy, log *zap.Logger) *PaymentService {
	if events == nil {
		events = queue.Nop{}
	}
	return &PaymentService{
		store:  store,
		events: events,
		retry:  retry,
		log:    log.Named("payments"),
		now:    time.Now,
		newRef: NewTransactionRef,
	}
}

// ProcessPayment settles the reservation in full with method (card when
// empty).
func (s *PaymentService) ProcessPayment(ctx context.Context, reservationID uint64, method string) (*PaymentResult, error) {
	res, err := s.process(ctx, reservationID, method)
	outcome := "completed"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	metrics.Payments.WithLabelValues(outcome).Inc()
	return res, err
}

func (s *PaymentService) process(ctx context.Context, reservationID uint64, method string) (*PaymentResult, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		method = model.MethodCard
	}
	if !model.ValidMethod(method) {
		return nil, apperr.New(apperr.InvalidArgument, "unsupported payment method %q", method)
	}

	res, err := s.payable(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	pay := model.Payment{
		ReservationID:  res.ID,
		Amount:         res.TotalPrice,
		Method:         method,
		TransactionRef: s.newRef(),
		Status:         model.PaymentPending,
	}
	err = s.retry.Do(ctx, "payment_record", s.log, func() error {
		return s.store.Payments().Create(ctx, &pay)
	})
	if err != nil {
		return nil, internal(s.log, err, "record payment")
	}
	log := s.log.With(zap.Uint64("reservation_id", res.ID), zap.String("transaction_ref", pay.TransactionRef))

	if err := s.settle(ctx, res, &pay); err != nil {
		if e, ok := apperr.As(err); ok && e.Kind == apperr.Conflict {
			s.fail(ctx, log, pay.ID)
			return nil, e
		}
		log.Error("settle failed, payment left for reconciliation", zap.Error(err))
		return nil, apperr.Wrap(apperr.Internal, err, "payment %s is awaiting reconciliation", pay.TransactionRef)
	}

	var completed bool
	err = s.retry.Do(ctx, "complete_payment", s.log, func() error {
		ok, err := s.store.Payments().UpdateStatusIf(ctx, pay.ID, model.PaymentPending, model.PaymentCompleted)
		completed = ok
		return err
	})
	if err == nil && !completed {
		// Someone else moved it; only completed is acceptable.
		var cur *model.Payment
		if cur, err = s.store.Payments().GetByID(ctx, pay.ID); err == nil && cur.Status != model.PaymentCompleted {
			err = errors.New("ledger record is " + cur.Status)
		}
	}
	if err != nil {
		log.Error("completing ledger record failed", zap.Error(err))
		return nil, apperr.Wrap(apperr.Internal, err, "payment %s is awaiting reconciliation", pay.TransactionRef)
	}
	pay.Status = model.PaymentCompleted
	if cur, err := s.store.Payments().GetByID(ctx, pay.ID); err == nil {
		pay = *cur
	}

	settled, err := s.store.Reservations().GetByID(ctx, res.ID)
	if err != nil {
		return nil, internal(s.log, err, "reload reservation")
	}
	one := []model.Reservation{*settled}
	if err := attachProjections(ctx, s.store.Catalog(), one); err != nil {
		return nil, internal(s.log, err, "resolve furniture")
	}

	log.Info("payment completed", zap.String("amount", pay.Amount.StringFixed(2)), zap.String("method", pay.Method))
	publish(ctx, s.events, s.log, queue.NewPaymentCompleted(pay, false, s.now()))
	return &PaymentResult{Payment: pay, Reservation: one[0]}, nil
}

// payable loads the reservation and rejects cancelled or settled ones.
func (s *PaymentService) payable(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := s.store.Reservations().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "reservation %d not found", id)
	}
	if err != nil {
		return nil, internal(s.log, err, "get reservation")
	}
	if res.Status == model.StatusCancelled {
		return nil, apperr.New(apperr.Conflict, "reservation %d is cancelled", id)
	}
	if res.PaymentRef != "" || res.Settled() {
		return nil, apperr.New(apperr.Conflict, "reservation %d is already paid", id)
	}
	return res, nil
}

// settle applies the guarded settle.  When the guard loses, the
// reservation is re-read: a concurrent unrelated write is retried with the
// new version; a concurrent cancel or payment is a Conflict.
func (s *PaymentService) settle(ctx context.Context, res *model.Reservation, pay *model.Payment) error {
	version := res.Version
	for attempt := 1; ; attempt++ {
		err := s.retry.Do(ctx, "settle", s.log, func() error {
			ok, err := s.store.Reservations().Settle(ctx, res.ID, version, pay.Amount, pay.TransactionRef)
			if err != nil {
				return err
			}
			if !ok {
				return errSettleLost
			}
			return nil
		})
		if !errors.Is(err, errSettleLost) {
			return err
		}
		cur, err := s.payable(ctx, res.ID)
		if err != nil {
			return err
		}
		if !cur.TotalPrice.Equal(pay.Amount) {
			return apperr.New(apperr.Conflict, "reservation %d total changed during payment", res.ID)
		}
		if attempt >= s.retry.versionRetries() {
			return apperr.New(apperr.Conflict, "reservation %d was modified concurrently, try again", res.ID)
		}
		metrics.StorageRetries.WithLabelValues("settle_version").Inc()
		version = cur.Version
	}
}

func (s *PaymentService) fail(ctx context.Context, log *zap.Logger, paymentID uint64) {
	ok, err := s.store.Payments().UpdateStatusIf(ctx, paymentID, model.PaymentPending, model.PaymentFailed)
	if err != nil || !ok {
		log.Warn("could not mark ledger record failed", zap.Bool("applied", ok), zap.Error(err))
		return
	}
	log.Info("payment rejected, ledger record failed")
}

// PaymentsByReservation lists the ledger of one reservation, newest first.
// An unknown reservation has an empty ledger.
func (s *PaymentService) PaymentsByReservation(ctx context.Context, reservationID uint64) ([]model.Payment, error) {
	list, err := s.store.Payments().ListByReservation(ctx, reservationID)
	if err != nil {
		return nil, internal(s.log, err, "list payments")
	}
	return list, nil
}
