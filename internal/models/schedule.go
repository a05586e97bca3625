package models

import (
	"time"

	"github.com/PatriickRM/loan-banking-system/internal/amortization"
	"github.com/shopspring/decimal"
)

// ScheduleRow is one persisted installment of a loan's repayment schedule.
// Its shape matches what the payment API serves, so reconciliation can run
// equally over locally computed installments or rows fetched back from the
// store.
type ScheduleRow struct {
	ID                int64               `json:"id" db:"id"`
	LoanID            int64               `json:"loan_id" db:"loan_id"`
	InstallmentNumber int                 `json:"installment_number" db:"installment_number"`
	Amount            decimal.Decimal     `json:"amount" db:"amount"`
	Principal         decimal.Decimal     `json:"principal" db:"principal"`
	Interest          decimal.Decimal     `json:"interest" db:"interest"`
	RemainingBalance  decimal.Decimal     `json:"remaining_balance" db:"remaining_balance"`
	DueDate           time.Time           `json:"due_date" db:"due_date"`
	Status            amortization.Status `json:"status" db:"status"`
	CreatedAt         time.Time           `json:"created_at" db:"created_at"`
}

// Installment converts a stored row back into the computation shape.
// A CANCELLED row carries its terminal status through reconciliation.
func (r ScheduleRow) Installment() amortization.Installment {
	return amortization.Installment{
		InstallmentNumber:     r.InstallmentNumber,
		TotalAmount:           r.Amount,
		PrincipalComponent:    r.Principal,
		InterestComponent:     r.Interest,
		RemainingBalanceAfter: r.RemainingBalance,
		DueDate:               r.DueDate,
		Cancelled:             r.Status == amortization.StatusCancelled,
	}
}

// NewScheduleRow builds a persistable row from a computed installment.
func NewScheduleRow(loanID int64, inst amortization.Installment) ScheduleRow {
	return ScheduleRow{
		LoanID:            loanID,
		InstallmentNumber: inst.InstallmentNumber,
		Amount:            inst.TotalAmount,
		Principal:         inst.PrincipalComponent,
		Interest:          inst.InterestComponent,
		RemainingBalance:  inst.RemainingBalanceAfter,
		DueDate:           inst.DueDate,
		Status:            amortization.StatusPending,
	}
}

// ScheduleEntryResponse is the reconciled view of one installment as served
// to dashboards.
type ScheduleEntryResponse struct {
	InstallmentNumber int                 `json:"installmentNumber"`
	Amount            decimal.Decimal     `json:"amount"`
	Principal         decimal.Decimal     `json:"principal"`
	Interest          decimal.Decimal     `json:"interest"`
	RemainingBalance  decimal.Decimal     `json:"remainingBalance"`
	DueDate           string              `json:"dueDate"`
	Status            amortization.Status `json:"status"`
	DaysUntilDue      int                 `json:"daysUntilDue"`
	IsOverdue         bool                `json:"isOverdue"`
	AmountPaid        decimal.Decimal     `json:"amountPaid"`
}

// NewScheduleEntryResponse flattens a reconciled entry for JSON rendering.
func NewScheduleEntryResponse(e amortization.ScheduleEntry) ScheduleEntryResponse {
	return ScheduleEntryResponse{
		InstallmentNumber: e.InstallmentNumber,
		Amount:            e.TotalAmount,
		Principal:         e.PrincipalComponent,
		Interest:          e.InterestComponent,
		RemainingBalance:  e.RemainingBalanceAfter,
		DueDate:           e.DueDate.Format("2006-01-02"),
		Status:            e.Status,
		DaysUntilDue:      e.DaysUntilDue,
		IsOverdue:         e.IsOverdue,
		AmountPaid:        e.AmountPaid,
	}
}
