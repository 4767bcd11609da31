package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/orderpay/internal/model"
	"github.com/jwalitptl/orderpay/internal/repository"
	apperrors "github.com/jwalitptl/orderpay/pkg/errors"
)

type accountRepository struct {
	BaseRepository
}

func NewAccountRepository(base BaseRepository) repository.AccountRepository {
	return &accountRepository{base}
}

func (r *accountRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, account *model.Account) error {
	query := `
		INSERT INTO accounts (
			user_id, balance, created_at, updated_at
		) VALUES ($1, $2, $3, $4)
	`
	_, err := tx.ExecContext(ctx, query,
		account.UserID,
		account.Balance,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperrors.AccountAlreadyExists(account.UserID)
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetTx locks the account row. The balance check in the ledger is
// check-then-act; the row lock is what keeps it atomic under concurrent
// debits.
func (r *accountRepository) GetTx(ctx context.Context, tx *sqlx.Tx, userID string) (*model.Account, error) {
	query := `
		SELECT user_id, balance, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE
	`
	var account model.Account
	err := tx.GetContext(ctx, &account, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) UpdateBalanceTx(ctx context.Context, tx *sqlx.Tx, userID string, balance decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = $1, updated_at = $2
		WHERE user_id = $3
	`
	result, err := tx.ExecContext(ctx, query, balance, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *accountRepository) Get(ctx context.Context, userID string) (*model.Account, error) {
	query := `
		SELECT user_id, balance, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
	`
	var account model.Account
	err := r.db.GetContext(ctx, &account, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}
