package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func newOrder(status OrderStatus) *Order {
	return &Order{
		ID:     uuid.New(),
		UserID: "u1",
		Amount: decimal.NewFromInt(40),
		Status: status,
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	assert.False(t, OrderStatusNew.Terminal())
	assert.False(t, OrderStatusProcessing.Terminal())
	assert.True(t, OrderStatusFinished.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
}

func TestOrder_ApplyPaymentOutcome(t *testing.T) {
	order := newOrder(OrderStatusNew)

	changed, err := order.ApplyPaymentOutcome(OrderStatusFinished)
	assert.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, OrderStatusFinished, order.Status)

	order = newOrder(OrderStatusNew)
	changed, err = order.ApplyPaymentOutcome(OrderStatusCancelled)
	assert.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, OrderStatusCancelled, order.Status)
}

func TestOrder_ApplyPaymentOutcome_TerminalIsStable(t *testing.T) {
	for _, terminal := range []OrderStatus{OrderStatusFinished, OrderStatusCancelled} {
		order := newOrder(terminal)

		// Duplicate and conflicting outcomes are both no-ops, not errors.
		for _, outcome := range []OrderStatus{OrderStatusFinished, OrderStatusCancelled} {
			changed, err := order.ApplyPaymentOutcome(outcome)
			assert.NoError(t, err)
			assert.False(t, changed)
			assert.Equal(t, terminal, order.Status)
		}
	}
}

func TestOrder_ApplyPaymentOutcome_RejectsNonTerminal(t *testing.T) {
	order := newOrder(OrderStatusNew)

	for _, outcome := range []OrderStatus{OrderStatusNew, OrderStatusProcessing, OrderStatus("bogus")} {
		changed, err := order.ApplyPaymentOutcome(outcome)
		assert.Error(t, err)
		assert.False(t, changed)
		assert.Equal(t, OrderStatusNew, order.Status)
	}
}
