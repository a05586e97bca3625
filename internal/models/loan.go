package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the booking currency for loans and disbursements.
const DefaultCurrency = "PEN"

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "PENDING"   // under evaluation
	LoanStatusApproved  LoanStatus = "APPROVED"  // approved, not yet disbursed
	LoanStatusRejected  LoanStatus = "REJECTED"
	LoanStatusActive    LoanStatus = "ACTIVE"    // disbursed
	LoanStatusCompleted LoanStatus = "COMPLETED" // fully repaid
	LoanStatusDefaulted LoanStatus = "DEFAULTED"
	LoanStatusCancelled LoanStatus = "CANCELLED"
)

// Loan represents a loan application and its terms.
type Loan struct {
	ID               int64           `json:"id" db:"id"`
	CustomerID       int64           `json:"customer_id" db:"customer_id"`
	LoanType         string          `json:"loan_type" db:"loan_type"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	InterestRate     decimal.Decimal `json:"interest_rate" db:"interest_rate"` // nominal annual %, e.g. 18.5
	TermMonths       int             `json:"term_months" db:"term_months"`
	MonthlyPayment   decimal.Decimal `json:"monthly_payment" db:"monthly_payment"`
	TotalAmount      decimal.Decimal `json:"total_amount" db:"total_amount"`
	Purpose          string          `json:"purpose,omitempty" db:"purpose"`
	Status           LoanStatus      `json:"status" db:"status"`
	RejectionReason  string          `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ApprovedBy       *int64          `json:"approved_by,omitempty" db:"approved_by"`
	ApplicationDate  time.Time       `json:"application_date" db:"application_date"`
	ApprovalDate     *time.Time      `json:"approval_date,omitempty" db:"approval_date"`
	DisbursementDate *time.Time      `json:"disbursement_date,omitempty" db:"disbursement_date"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}
