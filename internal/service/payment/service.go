package payment

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/orderpay/internal/inbox"
	"github.com/jwalitptl/orderpay/internal/model"
	"github.com/jwalitptl/orderpay/internal/outbox"
	account "github.com/jwalitptl/orderpay/internal/service/account"
	apperrors "github.com/jwalitptl/orderpay/pkg/errors"
	"github.com/jwalitptl/orderpay/pkg/logger"
	"github.com/jwalitptl/orderpay/pkg/messaging"
)

// Service consumes OrderPaymentRequested events: it debits the account
// and replies with a PaymentStatusUpdated outcome through the local
// outbox, all in the delivery's transaction.
type Service struct {
	accounts *account.Service
	outbox   *outbox.Writer
	dedup    *inbox.Deduplicator
	validate *validator.Validate
	logger   *logger.Logger
}

func NewService(accounts *account.Service, outbox *outbox.Writer, dedup *inbox.Deduplicator, logger *logger.Logger) *Service {
	return &Service{
		accounts: accounts,
		outbox:   outbox,
		dedup:    dedup,
		validate: validator.New(),
		logger:   logger,
	}
}

// HandleEvent is the broker handler for the payment-requests topic. A
// nil return acknowledges the delivery; errors leave it for redelivery.
func (s *Service) HandleEvent(ctx context.Context, evt messaging.Event) error {
	return s.dedup.Process(ctx, evt.ID, evt.Type, evt.Payload, func(tx *sqlx.Tx, record *model.InboxRecord) error {
		return s.processTx(ctx, tx, record)
	})
}

func (s *Service) processTx(ctx context.Context, tx *sqlx.Tx, record *model.InboxRecord) error {
	var req model.OrderPaymentRequested
	if err := json.Unmarshal(record.Payload, &req); err != nil {
		// Malformed payload is terminal: it will never decode better on
		// a retry. The source event id is the only correlation left.
		s.logger.Error(err, "Failed to decode payment request, cancelling",
			"source_event_id", record.SourceEventID.String())
		return s.appendOutcome(ctx, tx, record.SourceEventID, model.OrderStatusCancelled)
	}

	if err := s.validate.Struct(&req); err != nil {
		orderID := req.OrderID
		if orderID == uuid.Nil {
			orderID = record.SourceEventID
		}
		s.logger.Error(err, "Invalid payment request, cancelling",
			"order_id", orderID.String())
		return s.appendOutcome(ctx, tx, orderID, model.OrderStatusCancelled)
	}

	status := model.OrderStatusFinished
	err := s.accounts.DebitTx(ctx, tx, req.UserID, req.Amount)
	switch {
	case err == nil:
		s.logger.Info("Payment debited",
			"order_id", req.OrderID.String(),
			"user_id", req.UserID,
			"amount", req.Amount.String())
	case apperrors.IsBusiness(err):
		// Valid outcome, not a fault: the order is cancelled and the
		// saga continues.
		s.logger.Warn("Payment rejected",
			"order_id", req.OrderID.String(),
			"user_id", req.UserID,
			"reason", err.Error())
		status = model.OrderStatusCancelled
	default:
		// Infra failure: roll back and let redelivery retry.
		return err
	}

	return s.appendOutcome(ctx, tx, req.OrderID, status)
}

func (s *Service) appendOutcome(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, status model.OrderStatus) error {
	_, err := s.outbox.AppendTx(ctx, tx, model.EventTypePaymentStatusUpdated, model.PaymentStatusUpdated{
		OrderID: orderID,
		Status:  status,
	})
	return err
}
