package amortization

import "github.com/shopspring/decimal"

// lateFeeRate is the flat surcharge applied to an overdue installment.
// It does not compound and is not reduced by prior partial payments.
var lateFeeRate = decimal.NewFromFloat(0.05)

// PaymentCharge is the exact amount due for a single installment payment.
type PaymentCharge struct {
	BaseAmount decimal.Decimal
	LateFee    decimal.Decimal
	TotalDue   decimal.Decimal
}

// ComputeCharge returns the charge for an entry: the installment total plus
// a 5% late fee when overdue. It mutates nothing and records nothing;
// recording the payment is the caller's responsibility.
func ComputeCharge(entry ScheduleEntry) PaymentCharge {
	fee := decimal.Zero
	if entry.IsOverdue {
		fee = entry.TotalAmount.Mul(lateFeeRate).Round(2)
	}
	return PaymentCharge{
		BaseAmount: entry.TotalAmount,
		LateFee:    fee,
		TotalDue:   entry.TotalAmount.Add(fee),
	}
}
