package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment methods.
const (
	MethodCard = "card"
	MethodCash = "cash"
)

// Payment statuses.  Records are created pending and move once, to
// completed or failed.  refunded is accepted by the schema but nothing
// writes it yet.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

// ValidMethod reports whether m is an accepted payment method.
func ValidMethod(m string) bool { return m == MethodCard || m == MethodCash }

// Payment is a row of the payment ledger (`payments` table).
type Payment struct {
	ID             uint64          `json:"id"`              // payments.id
	ReservationID  uint64          `json:"reservation_id"`  // payments.reservation_id
	Amount         decimal.Decimal `json:"amount"`          // payments.amount
	Method         string          `json:"method"`          // payments.method
	TransactionRef string          `json:"transaction_ref"` // payments.transaction_ref (unique)
	Status         string          `json:"status"`          // payments.status
	CreatedAt      time.Time       `json:"created_at"`      // payments.created_at
	UpdatedAt      time.Time       `json:"updated_at"`      // payments.updated_at
}
