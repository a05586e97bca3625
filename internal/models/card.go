package models

// CardDetails are the card fields submitted with a CARD method payment.
// The number is validated (Luhn) and discarded; only a masked form is kept.
type CardDetails struct {
	CardNumber string `json:"cardNumber" validate:"required,min=13,max=19"`
	CardHolder string `json:"cardHolder" validate:"required,min=2"`
	Expiry     string `json:"expiry" validate:"required,len=5"` // MM/YY
	CVV        string `json:"cvv" validate:"required,min=3,max=4"`
}

// MaskedNumber returns the card number with all but the last four digits
// hidden.
func (c CardDetails) MaskedNumber() string {
	digits := digitsOnly(c.CardNumber)
	if len(digits) <= 4 {
		return digits
	}
	masked := make([]byte, len(digits))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(masked)-4:], digits[len(digits)-4:])
	return string(masked)
}

func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
