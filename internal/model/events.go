package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types as they appear on the wire. These are the contract between
// the orders and payments services.
const (
	EventTypeOrderPaymentRequested = "OrderPaymentRequested"
	EventTypePaymentStatusUpdated  = "PaymentStatusUpdated"
	EventTypeAccountCreated        = "AccountCreated"
	EventTypeAccountDeposited      = "AccountDeposited"
)

// OrderPaymentRequested asks the payments service to debit a user's
// account for a newly placed order.
type OrderPaymentRequested struct {
	OrderID     uuid.UUID       `json:"order_id" validate:"required"`
	UserID      string          `json:"user_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Description *string         `json:"description,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// PaymentStatusUpdated reports the payment outcome back to the orders
// service. Status is always terminal: finished or cancelled.
type PaymentStatusUpdated struct {
	OrderID uuid.UUID   `json:"order_id" validate:"required"`
	Status  OrderStatus `json:"status" validate:"required,oneof=finished cancelled"`
}

type AccountCreated struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

type AccountDeposited struct {
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}
