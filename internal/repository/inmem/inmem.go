// Package inmem holds map-backed implementations of the repository
// interfaces. They back the unit and saga-flow tests, where spinning up
// postgres would be all cost and no coverage: what the tests exercise is
// the protocol between the outbox, the inbox and the services, not SQL.
//
// WithTx serializes on a single store mutex, which is the same
// discipline the postgres row locks enforce: one unit of work at a time
// per contended row. Tx method variants assume that lock is held and
// receive a nil *sqlx.Tx.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/orderpay/internal/model"
	"github.com/jwalitptl/orderpay/internal/repository"
	apperrors "github.com/jwalitptl/orderpay/pkg/errors"
)

// DB is one service's private store.
type DB struct {
	mu sync.Mutex

	orders   map[uuid.UUID]*model.Order
	accounts map[string]*model.Account
	outbox   []*model.OutboxRecord
	inbox    map[uuid.UUID]*model.InboxRecord // keyed by source event id
}

func New() *DB {
	return &DB{
		orders:   make(map[uuid.UUID]*model.Order),
		accounts: make(map[string]*model.Account),
		inbox:    make(map[uuid.UUID]*model.InboxRecord),
	}
}

// WithTx runs fn under the store lock. Mutations are not rolled back
// when fn fails; tests that exercise retry paths arrange their fixtures
// the way a crashed-and-redelivered transaction would have left them.
func (d *DB) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(nil)
}

var _ repository.Store = (*DB)(nil)

type orderRepository struct {
	db *DB
}

func NewOrderRepository(db *DB) repository.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, order *model.Order) error {
	cp := *order
	r.db.orders[order.ID] = &cp
	return nil
}

func (r *orderRepository) GetTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Order, error) {
	order, ok := r.db.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *orderRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OrderStatus) error {
	order, ok := r.db.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.GetTx(ctx, nil, id)
}

func (r *orderRepository) List(ctx context.Context) ([]*model.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	orders := make([]*model.Order, 0, len(r.db.orders))
	for _, order := range r.db.orders {
		cp := *order
		orders = append(orders, &cp)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

type accountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, account *model.Account) error {
	if _, exists := r.db.accounts[account.UserID]; exists {
		return apperrors.AccountAlreadyExists(account.UserID)
	}
	cp := *account
	r.db.accounts[account.UserID] = &cp
	return nil
}

func (r *accountRepository) GetTx(ctx context.Context, tx *sqlx.Tx, userID string) (*model.Account, error) {
	account, ok := r.db.accounts[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *account
	return &cp, nil
}

func (r *accountRepository) UpdateBalanceTx(ctx context.Context, tx *sqlx.Tx, userID string, balance decimal.Decimal) error {
	account, ok := r.db.accounts[userID]
	if !ok {
		return repository.ErrNotFound
	}
	account.Balance = balance
	account.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *accountRepository) Get(ctx context.Context, userID string) (*model.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.GetTx(ctx, nil, userID)
}

// Outbox is exported concrete so tests can reach the All/ResetSent hooks.
type Outbox struct {
	db *DB
}

func NewOutboxRepository(db *DB) *Outbox {
	return &Outbox{db: db}
}

var _ repository.OutboxRepository = (*Outbox)(nil)

func (r *Outbox) CreateTx(ctx context.Context, tx *sqlx.Tx, record *model.OutboxRecord) error {
	cp := *record
	r.db.outbox = append(r.db.outbox, &cp)
	return nil
}

func (r *Outbox) GetPending(ctx context.Context, limit int) ([]*model.OutboxRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var pending []*model.OutboxRecord
	for _, record := range r.db.outbox {
		if record.Pending() {
			cp := *record
			pending = append(pending, &cp)
			if len(pending) == limit {
				break
			}
		}
	}
	return pending, nil
}

func (r *Outbox) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, record := range r.db.outbox {
		if record.ID == id {
			at := sentAt
			record.SentAt = &at
			record.LastError = nil
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *Outbox) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, record := range r.db.outbox {
		if record.ID == id && record.Pending() {
			msg := lastError
			record.LastError = &msg
			return nil
		}
	}
	return repository.ErrNotFound
}

// All returns a snapshot of every outbox record, sent or not. Test hook.
func (r *Outbox) All() []*model.OutboxRecord {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	records := make([]*model.OutboxRecord, 0, len(r.db.outbox))
	for _, record := range r.db.outbox {
		cp := *record
		records = append(records, &cp)
	}
	return records
}

// ResetSent clears sent_at on a record, simulating a dispatcher that
// crashed after publishing but before marking the record. Test hook.
func (r *Outbox) ResetSent(id uuid.UUID) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, record := range r.db.outbox {
		if record.ID == id {
			record.SentAt = nil
		}
	}
}

type inboxRepository struct {
	db *DB
}

func NewInboxRepository(db *DB) repository.InboxRepository {
	return &inboxRepository{db: db}
}

func (r *inboxRepository) GetBySourceTx(ctx context.Context, tx *sqlx.Tx, sourceEventID uuid.UUID) (*model.InboxRecord, error) {
	record, ok := r.db.inbox[sourceEventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (r *inboxRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, record *model.InboxRecord) error {
	if _, exists := r.db.inbox[record.SourceEventID]; exists {
		return apperrors.NewBadRequest("duplicate inbox record", nil)
	}
	cp := *record
	r.db.inbox[record.SourceEventID] = &cp
	return nil
}

func (r *inboxRepository) MarkProcessedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, processedAt time.Time) error {
	for _, record := range r.db.inbox {
		if record.ID == id && record.ProcessedAt == nil {
			at := processedAt
			record.ProcessedAt = &at
			return nil
		}
	}
	return repository.ErrNotFound
}
