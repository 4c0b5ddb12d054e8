package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reservation statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// ValidStatus reports whether s is one of the reservation statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Reservation records a customer's hold on one or more catalog items.
// Totals are computed once at creation from the prices current at that
// moment and are never recomputed from the live catalog.
//
// Fields:
//
//	ID            – primary key identifier.
//	CustomerName  – name given by the customer.
//	Address       – delivery address.
//	NationalID    – customer's national identity number (lookup key).
//	LineItems     – ordered line items; quantities and locked unit prices.
//	TotalQuantity – sum of line item quantities.
//	TotalPrice    – sum of quantity × unit price.
//	Status        – pending, confirmed, completed or cancelled.
//	PaidAmount    – amount settled by payments.
//	PaymentRef    – transaction reference of the settling payment.
//	Version       – optimistic concurrency counter, bumped on every write.
//	CreatedAt     – creation timestamp.
//	UpdatedAt     – last update timestamp.
type Reservation struct {
	ID            uint64          `json:"id"`             // reservations.id
	CustomerName  string          `json:"customer_name"`  // reservations.customer_name
	Address       string          `json:"address"`        // reservations.address
	NationalID    string          `json:"national_id"`    // reservations.national_id
	LineItems     []LineItem      `json:"line_items"`     // reservation_items rows
	TotalQuantity int             `json:"total_quantity"` // reservations.total_quantity
	TotalPrice    decimal.Decimal `json:"total_price"`    // reservations.total_price
	Status        string          `json:"status"`         // reservations.status
	PaidAmount    decimal.Decimal `json:"paid_amount"`    // reservations.paid_amount
	PaymentRef    string          `json:"payment_ref,omitempty"`
	Version       int             `json:"version"`    // reservations.version
	CreatedAt     time.Time       `json:"created_at"` // reservations.created_at
	UpdatedAt     time.Time       `json:"updated_at"` // reservations.updated_at
}

// LineItem is one (catalog item, quantity) pair of a reservation.  ItemID
// is a weak reference: the item may be modified or deleted later, in which
// case Item is nil on reads.
type LineItem struct {
	ItemID    uint64          `json:"item_id"`        // reservation_items.item_id
	Quantity  int             `json:"quantity"`       // reservation_items.quantity
	UnitPrice decimal.Decimal `json:"unit_price"`     // reservation_items.unit_price
	Item      *ItemProjection `json:"item,omitempty"` // resolved on read
}

// Settled reports whether the reservation has been paid in full.
func (r Reservation) Settled() bool {
	return r.PaymentRef != "" && r.PaidAmount.GreaterThanOrEqual(r.TotalPrice)
}

// Clone returns a deep copy so stored values never alias caller slices.
func (r Reservation) Clone() Reservation {
	out := r
	out.LineItems = make([]LineItem, len(r.LineItems))
	for i, li := range r.LineItems {
		out.LineItems[i] = li
		if li.Item != nil {
			p := *li.Item
			out.LineItems[i].Item = &p
		}
	}
	return out
}
