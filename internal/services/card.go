package services

import (
	"strconv"
	"strings"
	"time"
)

// LuhnValid reports whether a card number passes the Luhn checksum.
// Spaces are ignored; anything shorter than 13 digits fails.
func LuhnValid(number string) bool {
	digits := strings.ReplaceAll(number, " ", "")
	if len(digits) < 13 {
		return false
	}

	sum := 0
	shouldDouble := false
	for i := len(digits) - 1; i >= 0; i-- {
		if digits[i] < '0' || digits[i] > '9' {
			return false
		}
		d := int(digits[i] - '0')
		if shouldDouble {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		shouldDouble = !shouldDouble
	}
	return sum%10 == 0
}

// CardExpiryValid reports whether an MM/YY expiry is this month or later.
func CardExpiryValid(expiry string, now time.Time) bool {
	parts := strings.Split(expiry, "/")
	if len(parts) != 2 {
		return false
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return false
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	year += 2000

	if year != now.Year() {
		return year > now.Year()
	}
	return time.Month(month) >= now.Month()
}
