package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Disbursement is an outbound transfer of an approved loan's principal to
// the customer's bank account. It is what the ISO 20022 export renders.
type Disbursement struct {
	ID            int64           `json:"id" db:"id"`
	LoanID        int64           `json:"loan_id" db:"loan_id"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	ReferenceID   string          `json:"reference_id" db:"reference_id"`
	CustomerName  string          `json:"customer_name" db:"customer_name"`
	AccountNumber string          `json:"account_number" db:"account_number"`
	BankCode      string          `json:"bank_code" db:"bank_code"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Currency      string          `json:"currency" db:"currency"`
	Status        string          `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	SettledAt     *time.Time      `json:"settled_at,omitempty" db:"settled_at"`
}
