package account

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/orderpay/internal/model"
	"github.com/jwalitptl/orderpay/internal/outbox"
	"github.com/jwalitptl/orderpay/internal/repository"
	apperrors "github.com/jwalitptl/orderpay/pkg/errors"
	"github.com/jwalitptl/orderpay/pkg/logger"
)

// Service is the account ledger. Every balance mutation happens under
// the account row lock taken by GetTx, so concurrent debits against one
// account serialize and the non-negative balance invariant holds.
type Service struct {
	store  repository.Store
	repo   repository.AccountRepository
	outbox *outbox.Writer
	logger *logger.Logger
}

func NewService(store repository.Store, repo repository.AccountRepository, outbox *outbox.Writer, logger *logger.Logger) *Service {
	return &Service{
		store:  store,
		repo:   repo,
		outbox: outbox,
		logger: logger,
	}
}

func (s *Service) CreateAccount(ctx context.Context, userID string) (*model.Account, error) {
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required", nil)
	}

	now := time.Now().UTC()
	account := &model.Account{
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repo.CreateTx(ctx, tx, account); err != nil {
			return err
		}
		_, err := s.outbox.AppendTx(ctx, tx, model.EventTypeAccountCreated, model.AccountCreated{
			UserID:    userID,
			Timestamp: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account created", "user_id", userID)
	return account, nil
}

func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*model.Account, error) {
	if amount.Sign() <= 0 {
		return nil, apperrors.InvalidAmount("deposit amount must be positive")
	}

	var account *model.Account
	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		account, err = s.lockedAccount(ctx, tx, userID)
		if err != nil {
			return err
		}

		account.Balance = account.Balance.Add(amount)
		if err := s.repo.UpdateBalanceTx(ctx, tx, userID, account.Balance); err != nil {
			return err
		}

		_, err = s.outbox.AppendTx(ctx, tx, model.EventTypeAccountDeposited, model.AccountDeposited{
			UserID:    userID,
			Amount:    amount,
			Timestamp: time.Now().UTC(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Deposit applied", "user_id", userID, "amount", amount.String())
	return account, nil
}

// DebitTx decreases the balance inside the caller's transaction; the
// payments inbox handler uses it so the debit commits atomically with
// the inbox bookkeeping and the outcome event. Fails with
// InsufficientFunds rather than ever letting the balance go negative.
func (s *Service) DebitTx(ctx context.Context, tx *sqlx.Tx, userID string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return apperrors.InvalidAmount("debit amount must be positive")
	}

	account, err := s.lockedAccount(ctx, tx, userID)
	if err != nil {
		return err
	}

	if account.Balance.LessThan(amount) {
		return apperrors.InsufficientFunds(userID)
	}

	return s.repo.UpdateBalanceTx(ctx, tx, userID, account.Balance.Sub(amount))
}

func (s *Service) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	account, err := s.repo.Get(ctx, userID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.AccountNotFound(userID)
		}
		return nil, err
	}
	return account, nil
}

func (s *Service) lockedAccount(ctx context.Context, tx *sqlx.Tx, userID string) (*model.Account, error) {
	account, err := s.repo.GetTx(ctx, tx, userID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.AccountNotFound(userID)
		}
		return nil, err
	}
	return account, nil
}
