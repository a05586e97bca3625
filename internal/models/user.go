package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is an authenticated account. Roles gate which dashboard and
// operations the account may reach.
type User struct {
	ID         int64      `json:"id" example:"1"`
	Username   string     `json:"username" example:"jperez"`
	Email      string     `json:"email" example:"user@example.com"`
	Roles      []string   `json:"roles"`
	CustomerID *int64     `json:"customerId,omitempty"` // nil until a customer profile is linked
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Customer is the profile a loan is originated against.
type Customer struct {
	ID                  int64           `json:"id" db:"id"`
	UserID              int64           `json:"user_id" db:"user_id"`
	FirstName           string          `json:"first_name" db:"first_name"`
	LastName            string          `json:"last_name" db:"last_name"`
	DocumentNumber      string          `json:"document_number" db:"document_number"`
	PhoneNumber         string          `json:"phone_number" db:"phone_number"`
	MonthlyIncome       decimal.Decimal `json:"monthly_income" db:"monthly_income"`
	WorkExperienceYears int             `json:"work_experience_years" db:"work_experience_years"`
	BankCode            string          `json:"bank_code,omitempty" db:"bank_code"`
	AccountNumber       string          `json:"account_number,omitempty" db:"account_number"` // disbursement payout account
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
}

// CreditHistory is the aggregate a credit evaluation scores against.
type CreditHistory struct {
	CustomerID     int64           `json:"customer_id"`
	CompletedLoans int             `json:"completed_loans"`
	ActiveLoans    int             `json:"active_loans"`
	DefaultedLoans int             `json:"defaulted_loans"`
	TotalDebt      decimal.Decimal `json:"total_debt"`
	CreditScore    *int            `json:"credit_score,omitempty"` // external bureau score, when known
}
