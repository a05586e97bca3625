package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one side of a double-entry posting. Every transaction
// writes a balanced DEBIT/CREDIT pair.
type LedgerEntry struct {
	ID            int64           `json:"id" db:"id"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	AccountID     string          `json:"account_id" db:"account_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	EntryType     string          `json:"entry_type" db:"entry_type"` // DEBIT or CREDIT
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Account is an internal money account (loan funding, collections, fees).
type Account struct {
	ID        string          `json:"id" db:"id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Version   int             `json:"version" db:"version"` // for optimistic locking
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
