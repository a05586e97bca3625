package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is the channel a repayment arrived through.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodQR           PaymentMethod = "QR"
)

// PaymentStatus is the processing state of a recorded payment.
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusReversed  PaymentStatus = "REVERSED"
)

// Payment is a recorded repayment against one scheduled installment.
type Payment struct {
	ID                int64           `json:"id" db:"id"`
	LoanID            int64           `json:"loan_id" db:"loan_id"`
	ScheduleID        int64           `json:"schedule_id" db:"schedule_id"`
	InstallmentNumber int             `json:"installment_number" db:"installment_number"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	PrincipalPaid     decimal.Decimal `json:"principal_paid" db:"principal_paid"`
	InterestPaid      decimal.Decimal `json:"interest_paid" db:"interest_paid"`
	LateFee           decimal.Decimal `json:"late_fee" db:"late_fee"`
	PaymentMethod     PaymentMethod   `json:"payment_method" db:"payment_method"`
	TransactionID     string          `json:"transaction_id" db:"transaction_id"`
	ReferenceNumber   string          `json:"reference_number,omitempty" db:"reference_number"`
	Notes             string          `json:"notes,omitempty" db:"notes"`
	ProcessedBy       string          `json:"processed_by,omitempty" db:"processed_by"`
	PaymentDate       time.Time       `json:"payment_date" db:"payment_date"`
	DueDate           time.Time       `json:"due_date" db:"due_date"`
	Status            PaymentStatus   `json:"status" db:"status"`
}
