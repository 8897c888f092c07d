package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundHalfEven(t *testing.T) {
	cases := []struct {
		name   string
		amount float64
		want   float64
	}{
		{"exact cents unchanged", 27.00, 27.00},
		{"rounds down below half", 3.004, 3.00},
		{"rounds up above half", 3.006, 3.01},
		{"half rounds to even low", 2.125, 2.12},
		{"half rounds to even high", 2.375, 2.38},
		{"negative half rounds to even", -2.125, -2.12},
		{"zero", 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, RoundHalfEven(tc.amount), 1e-9)
		})
	}
}
