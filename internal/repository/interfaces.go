package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/orderpay/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store opens one local transaction per unit of work. Everything the
// saga does (business mutation, outbox append, inbox bookkeeping) is a
// set of local writes guarded by one commit; there is no distributed
// transaction anywhere.
type Store interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// Methods with a Tx suffix run inside the caller's transaction and must
// only be called from within a Store.WithTx scope.

type OrderRepository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, order *model.Order) error
	// GetTx locks the row for update.
	GetTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Order, error)
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OrderStatus) error
	Get(ctx context.Context, id uuid.UUID) (*model.Order, error)
	List(ctx context.Context) ([]*model.Order, error)
}

type AccountRepository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, account *model.Account) error
	// GetTx locks the row for update; concurrent debits against the same
	// account serialize on this lock.
	GetTx(ctx context.Context, tx *sqlx.Tx, userID string) (*model.Account, error)
	UpdateBalanceTx(ctx context.Context, tx *sqlx.Tx, userID string, balance decimal.Decimal) error
	Get(ctx context.Context, userID string) (*model.Account, error)
}

type OutboxRepository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, record *model.OutboxRecord) error
	// GetPending returns unsent records in occurred-at order, skipping
	// rows locked by a competing dispatcher.
	GetPending(ctx context.Context, limit int) ([]*model.OutboxRecord, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

type InboxRepository interface {
	GetBySourceTx(ctx context.Context, tx *sqlx.Tx, sourceEventID uuid.UUID) (*model.InboxRecord, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, record *model.InboxRecord) error
	MarkProcessedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, processedAt time.Time) error
}
