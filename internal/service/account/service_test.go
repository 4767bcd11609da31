package account

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/orderpay/internal/model"
	"github.com/jwalitptl/orderpay/internal/outbox"
	"github.com/jwalitptl/orderpay/internal/repository/inmem"
	apperrors "github.com/jwalitptl/orderpay/pkg/errors"
	"github.com/jwalitptl/orderpay/pkg/logger"
)

func newTestService() (*Service, *inmem.DB, *inmem.Outbox) {
	db := inmem.New()
	outboxRepo := inmem.NewOutboxRepository(db)
	svc := NewService(db, inmem.NewAccountRepository(db), outbox.NewWriter(outboxRepo), logger.NewNop())
	return svc, db, outboxRepo
}

func eventsOfType(repo *inmem.Outbox, eventType string) []*model.OutboxRecord {
	var out []*model.OutboxRecord
	for _, record := range repo.All() {
		if record.EventType == eventType {
			out = append(out, record)
		}
	}
	return out
}

func TestService_CreateAccount(t *testing.T) {
	ctx := context.Background()
	svc, _, outboxRepo := newTestService()

	account, err := svc.CreateAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", account.UserID)
	assert.True(t, account.Balance.IsZero())

	assert.Len(t, eventsOfType(outboxRepo, model.EventTypeAccountCreated), 1)
}

func TestService_CreateAccount_Duplicate(t *testing.T) {
	ctx := context.Background()
	svc, _, outboxRepo := newTestService()

	_, err := svc.CreateAccount(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.CreateAccount(ctx, "u1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrAccountAlreadyExists, apperrors.Code(err))

	// The rejected attempt must not leave a second creation event behind.
	assert.Len(t, eventsOfType(outboxRepo, model.EventTypeAccountCreated), 1)
}

func TestService_CreateAccount_EmptyUserID(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateAccount(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.Code(err))
}

func TestService_Deposit(t *testing.T) {
	ctx := context.Background()
	svc, _, outboxRepo := newTestService()

	_, err := svc.CreateAccount(ctx, "u1")
	require.NoError(t, err)

	account, err := svc.Deposit(ctx, "u1", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(100)))

	account, err = svc.Deposit(ctx, "u1", decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("100.01")))

	assert.Len(t, eventsOfType(outboxRepo, model.EventTypeAccountDeposited), 2)
}

func TestService_Deposit_Invalid(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	_, err := svc.CreateAccount(ctx, "u1")
	require.NoError(t, err)

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := svc.Deposit(ctx, "u1", amount)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrInvalidAmount, apperrors.Code(err))
	}

	_, err = svc.Deposit(ctx, "ghost", decimal.NewFromInt(10))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrAccountNotFound, apperrors.Code(err))
}

func TestService_DebitTx(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newTestService()

	_, err := svc.CreateAccount(ctx, "u1")
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, "u1", decimal.NewFromInt(100))
	require.NoError(t, err)

	debit := func(userID string, amount decimal.Decimal) error {
		return db.WithTx(ctx, func(tx *sqlx.Tx) error {
			return svc.DebitTx(ctx, tx, userID, amount)
		})
	}

	require.NoError(t, debit("u1", decimal.NewFromInt(40)))

	account, err := svc.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(60)))

	err = debit("u1", decimal.NewFromInt(61))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInsufficientFunds, apperrors.Code(err))

	account, err = svc.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(60)))

	err = debit("ghost", decimal.NewFromInt(1))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrAccountNotFound, apperrors.Code(err))

	err = debit("u1", decimal.Zero)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidAmount, apperrors.Code(err))
}

func TestService_DebitTx_ConcurrentNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newTestService()

	_, err := svc.CreateAccount(ctx, "u1")
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, "u1", decimal.NewFromInt(100))
	require.NoError(t, err)

	// 10 debits of 30 against 100: exactly 3 can fit.
	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- db.WithTx(ctx, func(tx *sqlx.Tx) error {
				return svc.DebitTx(ctx, tx, "u1", decimal.NewFromInt(30))
			})
		}()
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.Equal(t, apperrors.ErrInsufficientFunds, apperrors.Code(err))
		rejected++
	}
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 7, rejected)

	account, err := svc.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(10)))
}
