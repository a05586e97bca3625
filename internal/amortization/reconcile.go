package amortization

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Status classifies one schedule entry against recorded payments.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusPartial   Status = "PARTIAL"
	StatusCancelled Status = "CANCELLED"
)

// PaymentRecord is an externally recorded payment keyed by installment number.
type PaymentRecord struct {
	InstallmentNumber int
	AmountPaid        decimal.Decimal
}

// ScheduleEntry is an installment enriched with reconciliation state. It is a
// view: recomputed on every pass, never persisted by this package.
type ScheduleEntry struct {
	Installment
	Status       Status
	DaysUntilDue int // negative = overdue by that many days
	IsOverdue    bool
	AmountPaid   decimal.Decimal
}

// Result is the output of a reconciliation pass.
type Result struct {
	Entries         []ScheduleEntry
	CompletedCount  int
	ProgressPercent int

	// Unmatched holds payment records that reference installment numbers
	// outside the schedule. One bad record never aborts the pass.
	Unmatched []PaymentRecord
}

// Reconcile classifies every installment against the recorded payments as of
// the given date. It is a pure function of its inputs: the same schedule,
// payments and date always produce the same result. Entry order follows the
// input schedule (ascending installment number).
func Reconcile(installments []Installment, payments []PaymentRecord, today time.Time) Result {
	paid := make(map[int]decimal.Decimal, len(payments))
	var unmatched []PaymentRecord
	known := make(map[int]bool, len(installments))
	for _, inst := range installments {
		known[inst.InstallmentNumber] = true
	}
	for _, p := range payments {
		if !known[p.InstallmentNumber] {
			unmatched = append(unmatched, p)
			continue
		}
		paid[p.InstallmentNumber] = paid[p.InstallmentNumber].Add(p.AmountPaid)
	}

	todayDate := truncateToDay(today)
	entries := make([]ScheduleEntry, 0, len(installments))
	completed := 0

	for _, inst := range installments {
		amountPaid := paid[inst.InstallmentNumber]
		status := classify(inst, amountPaid, todayDate)
		if status == StatusPaid {
			completed++
		}

		// Computed for every status, paid entries included, so display
		// stays consistent across the whole schedule.
		days := wholeDaysBetween(todayDate, truncateToDay(inst.DueDate))

		entries = append(entries, ScheduleEntry{
			Installment:  inst,
			Status:       status,
			DaysUntilDue: days,
			IsOverdue:    status == StatusOverdue,
			AmountPaid:   amountPaid,
		})
	}

	progress := 0
	if len(installments) > 0 {
		progress = int(math.Round(float64(completed) / float64(len(installments)) * 100))
	}

	return Result{
		Entries:         entries,
		CompletedCount:  completed,
		ProgressPercent: progress,
		Unmatched:       unmatched,
	}
}

func classify(inst Installment, amountPaid decimal.Decimal, today time.Time) Status {
	switch {
	case inst.Cancelled:
		return StatusCancelled
	case amountPaid.GreaterThanOrEqual(inst.TotalAmount):
		return StatusPaid
	case amountPaid.IsPositive():
		return StatusPartial
	case truncateToDay(inst.DueDate).Before(today):
		return StatusOverdue
	default:
		return StatusPending
	}
}

// NextPayable returns the first entry in sequence order whose status is
// PENDING or OVERDUE. PARTIAL entries stay open but only become "next" when
// no PENDING or OVERDUE entry remains anywhere in the schedule. The second
// return is false when nothing is payable.
func (r Result) NextPayable() (ScheduleEntry, bool) {
	var firstPartial *ScheduleEntry
	for i, e := range r.Entries {
		switch e.Status {
		case StatusPending, StatusOverdue:
			return e, true
		case StatusPartial:
			if firstPartial == nil {
				firstPartial = &r.Entries[i]
			}
		}
	}
	if firstPartial != nil {
		return *firstPartial, true
	}
	return ScheduleEntry{}, false
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func wholeDaysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
