package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/furniture-reservation/internal/metrics"
	"github.com/iliyamo/furniture-reservation/internal/model"
	"github.com/iliyamo/furniture-reservation/internal/queue"
	"github.com/iliyamo/furniture-reservation/internal/repository"
)

// SweepResult counts what one sweep did.
type SweepResult struct {
	Scanned   int
	Completed int // reservation already carried the ref
	Settled   int // reservation settled by the sweep
	Failed    int
	Deferred  int // left pending for the next sweep
}

// Reconciler resolves ledger records left pending by an interrupted
// payment.  Records younger than Grace are left alone so in-flight
// payments are never touched.
type Reconciler struct {
	store  repository.Store
	events EventPublisher
	log    *zap.Logger
	grace  time.Duration
	batch  int
	now    func() time.Time
}

// NewReconciler resolves pending payments older than grace, batch at a time.
func NewReconciler(store repository.Store, events EventPublisher, grace time.Duration, batch int, log *zap.Logger) *Reconciler {
	if events == nil {
		events = queue.Nop{}
	}
	if batch < 1 {
		batch = 100
	}
	return &Reconciler{
		store:  store,
		events: events,
		log:    log.Named("reconciler"),
		grace:  grace,
		batch:  batch,
		now:    time.Now,
	}
}

// Run sweeps every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	r.log.Info("reconciler started", zap.Duration("interval", interval), zap.Duration("grace", r.grace))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-t.C:
			res, err := r.Sweep(ctx)
			if err != nil {
				r.log.Error("sweep failed", zap.Error(err))
				continue
			}
			if res.Scanned > 0 {
				r.log.Info("sweep finished",
					zap.Int("scanned", res.Scanned), zap.Int("completed", res.Completed),
					zap.Int("settled", res.Settled), zap.Int("failed", res.Failed), zap.Int("deferred", res.Deferred))
			}
		}
	}
}

// Sweep handles one batch of stale pending records.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var out SweepResult
	pending, err := r.store.Payments().ListPendingBefore(ctx, r.now().Add(-r.grace), r.batch)
	if err != nil {
		return out, err
	}
	for _, p := range pending {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out.Scanned++
		result := r.resolve(ctx, p)
		metrics.Reconciled.WithLabelValues(result).Inc()
		switch result {
		case "completed":
			out.Completed++
		case "settled":
			out.Settled++
		case "failed":
			out.Failed++
		default:
			out.Deferred++
		}
	}
	return out, nil
}

func (r *Reconciler) resolve(ctx context.Context, p model.Payment) string {
	log := r.log.With(zap.Uint64("payment_id", p.ID), zap.String("transaction_ref", p.TransactionRef))

	res, err := r.store.Reservations().GetByID(ctx, p.ReservationID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return r.mark(ctx, log, p, model.PaymentFailed, "failed")
	case err != nil:
		log.Warn("load reservation failed", zap.Error(err))
		return "deferred"
	}

	switch {
	case res.PaymentRef == p.TransactionRef:
		// The settle committed but the record was never completed.
		return r.mark(ctx, log, p, model.PaymentCompleted, "completed")
	case res.Status != model.StatusCancelled && res.PaymentRef == "" && res.TotalPrice.Equal(p.Amount):
		ok, err := r.store.Reservations().Settle(ctx, res.ID, res.Version, p.Amount, p.TransactionRef)
		if err != nil || !ok {
			log.Info("settle deferred", zap.Bool("applied", ok), zap.Error(err))
			return "deferred"
		}
		return r.mark(ctx, log, p, model.PaymentCompleted, "settled")
	default:
		return r.mark(ctx, log, p, model.PaymentFailed, "failed")
	}
}

func (r *Reconciler) mark(ctx context.Context, log *zap.Logger, p model.Payment, status, result string) string {
	ok, err := r.store.Payments().UpdateStatusIf(ctx, p.ID, model.PaymentPending, status)
	if err != nil || !ok {
		log.Warn("ledger update deferred", zap.String("to", status), zap.Bool("applied", ok), zap.Error(err))
		return "deferred"
	}
	log.Info("pending payment reconciled", zap.String("result", result))
	if status == model.PaymentCompleted {
		p.Status = status
		publish(ctx, r.events, r.log, queue.NewPaymentCompleted(p, true, r.now()))
	}
	return result
}
