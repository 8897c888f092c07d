package utils

import "math"

// RoundHalfEven rounds a monetary amount to two decimal places using
// round-half-to-even: a value exactly halfway between two cents rounds to
// the even neighbor, which avoids cumulative rounding bias across many
// discounts.
func RoundHalfEven(amount float64) float64 {
	return math.RoundToEven(amount*100) / 100
}
