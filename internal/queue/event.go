// Package queue carries domain events over RabbitMQ: the payload types,
// a publisher used by the services and the audit consumer.
package queue

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/furniture-reservation/internal/model"
)

// Event types.
const (
	TypeReservationCreated       = "reservation.created"
	TypeReservationStatusChanged = "reservation.status_changed"
	TypePaymentCompleted         = "payment.completed"
)

// Event is the envelope written to the queue.  Data holds one of the
// payload structs below.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// EventLine is one line item inside a reservation event.
type EventLine struct {
	ItemID    uint64          `json:"item_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ReservationCreated is published after a reservation commits.  It carries
// enough for downstream consumers to log or notify without querying the
// primary database.
type ReservationCreated struct {
	ReservationID uint64          `json:"reservation_id"`
	CustomerName  string          `json:"customer_name"`
	NationalID    string          `json:"national_id"`
	TotalQuantity int             `json:"total_quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Lines         []EventLine     `json:"lines"`
}

// StatusChanged is published after a status transition commits.
type StatusChanged struct {
	ReservationID uint64 `json:"reservation_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	StockRestored bool   `json:"stock_restored"`
}

// PaymentCompleted is published once a reservation is settled.
type PaymentCompleted struct {
	PaymentID      uint64          `json:"payment_id"`
	ReservationID  uint64          `json:"reservation_id"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	TransactionRef string          `json:"transaction_ref"`
	Reconciled     bool            `json:"reconciled"`
}

func NewReservationCreated(r model.Reservation, at time.Time) Event {
	lines := make([]EventLine, len(r.LineItems))
	for i, li := range r.LineItems {
		lines[i] = EventLine{ItemID: li.ItemID, Quantity: li.Quantity, UnitPrice: li.UnitPrice}
	}
	return Event{Type: TypeReservationCreated, OccurredAt: at.UTC(), Data: ReservationCreated{
		ReservationID: r.ID,
		CustomerName:  r.CustomerName,
		NationalID:    r.NationalID,
		TotalQuantity: r.TotalQuantity,
		TotalPrice:    r.TotalPrice,
		Lines:         lines,
	}}
}

func NewStatusChanged(id uint64, from, to string, restored bool, at time.Time) Event {
	return Event{Type: TypeReservationStatusChanged, OccurredAt: at.UTC(), Data: StatusChanged{
		ReservationID: id, From: from, To: to, StockRestored: restored,
	}}
}

func NewPaymentCompleted(p model.Payment, reconciled bool, at time.Time) Event {
	return Event{Type: TypePaymentCompleted, OccurredAt: at.UTC(), Data: PaymentCompleted{
		PaymentID:      p.ID,
		ReservationID:  p.ReservationID,
		Amount:         p.Amount,
		Method:         p.Method,
		TransactionRef: p.TransactionRef,
		Reconciled:     reconciled,
	}}
}
