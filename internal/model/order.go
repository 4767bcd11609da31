package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "new"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusFinished   OrderStatus = "finished"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is defined out of s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFinished || s == OrderStatusCancelled
}

type Order struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Description *string         `db:"description" json:"description,omitempty"`
	Status      OrderStatus     `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// ApplyPaymentOutcome advances the order state machine with a payment
// outcome. An outcome delivered to an order already in a terminal state is
// absorbed as a no-op (changed=false): the inbox is the primary defense
// against duplicates, but the state machine must hold on its own. Only
// terminal statuses are valid outcomes.
func (o *Order) ApplyPaymentOutcome(status OrderStatus) (changed bool, err error) {
	if !status.Terminal() {
		return false, fmt.Errorf("invalid payment outcome %q", status)
	}
	if o.Status.Terminal() {
		return false, nil
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}
