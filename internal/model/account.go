package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a user's payment ledger entry. Balance never goes below
// zero: a debit that would break that fails instead of clamping.
type Account struct {
	UserID    string          `db:"user_id" json:"user_id"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
