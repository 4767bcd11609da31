package order

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/orderpay/internal/inbox"
	"github.com/jwalitptl/orderpay/internal/model"
	"github.com/jwalitptl/orderpay/internal/outbox"
	"github.com/jwalitptl/orderpay/internal/repository"
	apperrors "github.com/jwalitptl/orderpay/pkg/errors"
	"github.com/jwalitptl/orderpay/pkg/logger"
	"github.com/jwalitptl/orderpay/pkg/messaging"
)

type CreateOrderRequest struct {
	OrderID     uuid.UUID
	UserID      string
	Amount      decimal.Decimal
	Description *string
}

// Service owns order placement and the order state machine. Placement
// writes the order and its OrderPaymentRequested event in one
// transaction; the payment outcome arrives later through the inbox.
type Service struct {
	store  repository.Store
	orders repository.OrderRepository
	outbox *outbox.Writer
	dedup  *inbox.Deduplicator
	logger *logger.Logger
}

func NewService(
	store repository.Store,
	orders repository.OrderRepository,
	outbox *outbox.Writer,
	dedup *inbox.Deduplicator,
	logger *logger.Logger,
) *Service {
	return &Service{
		store:  store,
		orders: orders,
		outbox: outbox,
		dedup:  dedup,
		logger: logger,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	if req.UserID == "" {
		return nil, apperrors.NewBadRequest("user id is required", nil)
	}
	if req.Amount.Sign() < 0 {
		return nil, apperrors.InvalidAmount("order amount cannot be negative")
	}

	id := req.OrderID
	if id == uuid.Nil {
		id = uuid.New()
	}

	now := time.Now().UTC()
	order := &model.Order{
		ID:          id,
		UserID:      req.UserID,
		Amount:      req.Amount,
		Description: req.Description,
		Status:      model.OrderStatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.orders.CreateTx(ctx, tx, order); err != nil {
			return err
		}
		_, err := s.outbox.AppendTx(ctx, tx, model.EventTypeOrderPaymentRequested, model.OrderPaymentRequested{
			OrderID:     order.ID,
			UserID:      order.UserID,
			Amount:      order.Amount,
			Description: order.Description,
			Timestamp:   now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		"order_id", order.ID.String(),
		"user_id", order.UserID,
		"amount", order.Amount.String())
	return order, nil
}

// HandleEvent is the broker handler for the payment-updates topic.
func (s *Service) HandleEvent(ctx context.Context, evt messaging.Event) error {
	return s.dedup.Process(ctx, evt.ID, evt.Type, evt.Payload, func(tx *sqlx.Tx, record *model.InboxRecord) error {
		return s.applyOutcomeTx(ctx, tx, record)
	})
}

func (s *Service) applyOutcomeTx(ctx context.Context, tx *sqlx.Tx, record *model.InboxRecord) error {
	var upd model.PaymentStatusUpdated
	if err := json.Unmarshal(record.Payload, &upd); err != nil {
		// Terminal: an undecodable outcome has nothing to apply and no
		// reply to send.
		s.logger.Error(err, "Failed to decode payment status, dropping",
			"source_event_id", record.SourceEventID.String())
		return nil
	}

	if !upd.Status.Terminal() {
		s.logger.Error(nil, "Dropping non-terminal payment outcome",
			"order_id", upd.OrderID.String(),
			"status", string(upd.Status))
		return nil
	}

	order, err := s.orders.GetTx(ctx, tx, upd.OrderID)
	if errors.Is(err, repository.ErrNotFound) {
		// An order cannot be created retroactively from its outcome.
		s.logger.Warn("Payment outcome for unknown order, dropping",
			"order_id", upd.OrderID.String())
		return nil
	}
	if err != nil {
		return err
	}

	changed, err := order.ApplyPaymentOutcome(upd.Status)
	if err != nil {
		s.logger.Error(err, "Dropping invalid payment outcome",
			"order_id", order.ID.String())
		return nil
	}
	if !changed {
		s.logger.Debug("Order already terminal, outcome is a no-op",
			"order_id", order.ID.String(),
			"status", string(order.Status))
		return nil
	}

	if err := s.orders.UpdateStatusTx(ctx, tx, order.ID, order.Status); err != nil {
		return err
	}

	s.logger.Info("Order status updated",
		"order_id", order.ID.String(),
		"status", string(order.Status))
	return nil
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.OrderNotFound(id.String())
		}
		return nil, err
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context) ([]*model.Order, error) {
	return s.orders.List(ctx)
}
