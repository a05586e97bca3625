// Package amortization computes French (annuity) repayment schedules and
// reconciles them against recorded payments. All monetary arithmetic uses
// decimals; callers never see float drift in schedule figures.
package amortization

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidLoanTerms is returned when loan terms violate their preconditions.
// Invalid terms are never clamped or coerced: a silently adjusted principal
// would corrupt every downstream figure.
var ErrInvalidLoanTerms = errors.New("invalid loan terms")

var (
	oneHundred  = decimal.NewFromInt(100)
	twelve      = decimal.NewFromInt(12)
	rateScale   = int32(6) // monthly rate precision
	amountScale = int32(2)
)

// LoanTerms are the inputs to a schedule computation.
type LoanTerms struct {
	Principal         decimal.Decimal
	AnnualRatePercent decimal.Decimal // nominal annual rate, 18.5 means 18.5%
	TermMonths        int
}

// Validate checks the term preconditions: positive principal, at least one
// period, non-negative rate.
func (t LoanTerms) Validate() error {
	if !t.Principal.IsPositive() {
		return fmt.Errorf("%w: principal must be positive, got %s", ErrInvalidLoanTerms, t.Principal)
	}
	if t.TermMonths < 1 {
		return fmt.Errorf("%w: term must be at least 1 month, got %d", ErrInvalidLoanTerms, t.TermMonths)
	}
	if t.AnnualRatePercent.IsNegative() {
		return fmt.Errorf("%w: annual rate must not be negative, got %s", ErrInvalidLoanTerms, t.AnnualRatePercent)
	}
	return nil
}

// MonthlyRate returns the nominal monthly rate (annual / 100 / 12) at
// six decimal places, half-up.
func (t LoanTerms) MonthlyRate() decimal.Decimal {
	return t.AnnualRatePercent.DivRound(oneHundred, rateScale).DivRound(twelve, rateScale)
}

// Installment is one period of a repayment schedule.
type Installment struct {
	InstallmentNumber     int
	TotalAmount           decimal.Decimal
	PrincipalComponent    decimal.Decimal
	InterestComponent     decimal.Decimal
	RemainingBalanceAfter decimal.Decimal
	DueDate               time.Time

	// Cancelled marks an installment voided by an external loan
	// cancellation. It is never set by ComputeSchedule; it survives
	// reconciliation as a terminal status.
	Cancelled bool
}

// MonthlyPayment returns the fixed installment amount for the given terms,
// rounded to two decimal places. The zero-rate case degenerates to a
// straight-line split and must not reach the annuity formula's division.
func MonthlyPayment(terms LoanTerms) (decimal.Decimal, error) {
	if err := terms.Validate(); err != nil {
		return decimal.Zero, err
	}

	rate := terms.MonthlyRate()
	if rate.IsZero() {
		return terms.Principal.DivRound(decimal.NewFromInt(int64(terms.TermMonths)), amountScale), nil
	}

	// M = P * r(1+r)^n / ((1+r)^n - 1)
	power := decimal.NewFromInt(1).Add(rate).Pow(decimal.NewFromInt(int64(terms.TermMonths)))
	payment := terms.Principal.
		Mul(rate.Mul(power)).
		DivRound(power.Sub(decimal.NewFromInt(1)), amountScale)
	return payment, nil
}

// ComputeSchedule produces the full ordered installment sequence for the
// given terms. Due dates advance one calendar month per period from
// startDate; when the start day does not exist in a target month the due
// date clamps to that month's last day. The final installment absorbs any
// rounding residue so the closing balance is exactly zero.
func ComputeSchedule(terms LoanTerms, startDate time.Time) ([]Installment, error) {
	payment, err := MonthlyPayment(terms)
	if err != nil {
		return nil, err
	}

	rate := terms.MonthlyRate()
	balance := terms.Principal
	schedule := make([]Installment, 0, terms.TermMonths)

	for i := 1; i <= terms.TermMonths; i++ {
		interest := balance.Mul(rate).Round(amountScale)
		principal := payment.Sub(interest)
		total := payment

		if i == terms.TermMonths {
			// Last period: pay off whatever balance remains exactly.
			principal = balance
			total = principal.Add(interest)
		}

		balance = balance.Sub(principal)

		schedule = append(schedule, Installment{
			InstallmentNumber:     i,
			TotalAmount:           total,
			PrincipalComponent:    principal,
			InterestComponent:     interest,
			RemainingBalanceAfter: balance,
			DueDate:               AddMonthsClamped(startDate, i),
		})
	}

	return schedule, nil
}

// AddMonthsClamped adds calendar months to a date, clamping the day of month
// to the last valid day of the target month (Jan 31 + 1 month = Feb 28/29).
func AddMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, t.Location())
}
