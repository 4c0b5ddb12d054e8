package service

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/furniture-reservation/internal/apperr"
	"github.com/iliyamo/furniture-reservation/internal/model"
	"github.com/iliyamo/furniture-reservation/internal/queue"
)

func TestProcessPayment_SettlesInFull(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	it := e.item(t, "Armchair", "100.00", 2)
	res := e.reservation(t, LineRequest{ItemID: it.ID, Quantity: 1})

	out, err := e.payments.ProcessPayment(ctx, res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "100.00", out.Reservation.PaidAmount.StringFixed(2))
	assert.Equal(t, model.StatusCompleted, out.Reservation.Status)
	assert.Equal(t, out.Payment.TransactionRef, out.Reservation.PaymentRef)
	assert.True(t, out.Reservation.Settled())
	assert.Equal(t, model.MethodCard, out.Payment.Method)
	assert.Equal(t, model.PaymentCompleted, out.Payment.Status)
	assert.Regexp(t, `^txn_[0-9a-f-]{36}$`, out.Payment.TransactionRef)

	ledger, err := e.payments.PaymentsByReservation(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, model.PaymentCompleted, ledger[0].Status)
	assert.Equal(t, "100.00", ledger[0].Amount.StringFixed(2))

	assert.Contains(t, e.events.types(), queue.TypePaymentCompleted)
}

func TestProcessPayment_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	it := e.item(t, "Ottoman", "45", 5)
	paid := e.reservation(t, LineRequest{ItemID: it.ID, Quantity: 1})
	_, err := e.payments.ProcessPayment(ctx, paid.ID, "cash")
	require.NoError(t, err)

	cancelled := e.reservation(t, LineRequest{ItemID: it.ID, Quantity: 1})
	_, err = e.reserve.UpdateStatus(ctx, cancelled.ID, model.StatusCancelled)
	require.NoError(t, err)

	_, err = e.payments.ProcessPayment(ctx, paid.ID, "card")
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err), "already settled")
	_, err = e.payments.ProcessPayment(ctx, cancelled.ID, "card")
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err), "cancelled")
	_, err = e.payments.ProcessPayment(ctx, 404, "card")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	_, err = e.payments.ProcessPayment(ctx, paid.ID, "bitcoin")
	assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))

	ledger, _ := e.payments.PaymentsByReservation(ctx, paid.ID)
	assert.Len(t, ledger, 1, "rejected attempts write no ledger rows")
	empty, err := e.payments.PaymentsByReservation(ctx, 404)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestProcessPayment_LosesToConcurrentCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	it := e.item(t, "Crib", "90", 1)
	res := e.reservation(t, LineRequest{ItemID: it.ID, Quantity: 1})
	e.faults.beforeSettle = func() {
		_, err := e.reserve.UpdateStatus(ctx, res.ID, model.StatusCancelled)
		require.NoError(t, err)
	}

	_, err := e.payments.ProcessPayment(ctx, res.ID, "card")
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	ledger, _ := e.payments.PaymentsByReservation(ctx, res.ID)
	require.Len(t, ledger, 1)
	assert.Equal(t, model.PaymentFailed, ledger[0].Status)
	got, _ := e.reserve.GetReservation(ctx, res.ID)
	assert.True(t, got.PaidAmount.IsZero())
	assert.Equal(t, 1, e.stock(t, it.ID))
}

func TestProcessPayment_ConcurrentStatusChangeIsRetried(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	it := e.item(t, "Crib", "90", 1)
	res := e.reservation(t, LineRequest{ItemID: it.ID, Quantity: 1})
	e.faults.beforeSettle = func() {
		_, err := e.reserve.UpdateStatus(ctx, res.ID, model.StatusConfirmed)
		require.NoError(t, err)
	}

	out, err := e.payments.ProcessPayment(ctx, res.ID, "card")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, out.Reservation.Status)
	assert.Equal(t, 3, out.Reservation.Version)
}

func TestProcessPayment_SettleFailureAwaitsReconciliation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	it := e.item(t, "Dresser", "150", 1)
	res := e.reservation(t, LineRequest{ItemID: it.ID, Quantity: 1})
	e.faults.settle = []error{driver.ErrBadConn, driver.ErrBadConn, driver.ErrBadConn}

	_, err := e.payments.ProcessPayment(ctx, res.ID, "card")
	require.Error(t, err)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "awaiting reconciliation")

	ledger, _ := e.payments.PaymentsByReservation(ctx, res.ID)
	require.Len(t, ledger, 1)
	assert.Equal(t, model.PaymentPending, ledger[0].Status)

	sweep, err := e.recon.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 1, Settled: 1}, sweep)

	got, _ := e.reserve.GetReservation(ctx, res.ID)
	assert.True(t, got.Settled())
	assert.Equal(t, ledger[0].TransactionRef, got.PaymentRef)
	ledger, _ = e.payments.PaymentsByReservation(ctx, res.ID)
	assert.Equal(t, model.PaymentCompleted, ledger[0].Status)
}

func TestProcessPayment_TransientSettleRetried(t *testing.T) {
	e := newEnv(t)
	it := e.item(t, "Dresser", "150", 1)
	res := e.reservation(t, LineRequest{ItemID: it.ID, Quantity: 1})
	e.faults.settle = []error{driver.ErrBadConn}

	out, err := e.payments.ProcessPayment(context.Background(), res.ID, "cash")
	require.NoError(t, err)
	assert.Equal(t, model.MethodCash, out.Payment.Method)
	assert.True(t, out.Reservation.Settled())
}
