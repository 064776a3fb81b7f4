package order

import (
	"fmt"
)

// FormatNumber renders a sequence value as an externally visible order
// number: a zero-padded sequence plus a Luhn check digit, e.g.
// "ORD-00001250-6". The sequence guarantees uniqueness; the check digit
// catches transcription errors in support flows.
func FormatNumber(seq int64) string {
	body := fmt.Sprintf("%08d", seq)
	return fmt.Sprintf("ORD-%s-%d", body, luhnCheckDigit(body))
}

// luhnCheckDigit computes the Luhn mod-10 check digit for a numeric string.
func luhnCheckDigit(digits string) int {
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}
