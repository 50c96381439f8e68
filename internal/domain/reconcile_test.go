package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPricesConsistent(t *testing.T) {
	testCases := []struct {
		name      string
		fetched   float64
		reference float64
		expected  bool
	}{
		{"within band", 95, 100, true},
		{"exact match", 100, 100, true},
		{"fetched half the reference", 50, 100, false},
		// 80*0.9 < 100 holds but 80/0.9 > 100 does not.
		{"lower bound only", 80, 100, false},
		// 120/0.9 > 100 holds but 120*0.9 < 100 does not.
		{"upper bound only", 120, 100, false},
		{"band edge excluded", 100, 90, false},
		{"just inside lower edge", 100, 90.01, true},
		{"just inside upper edge", 100, 111.1, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, PricesConsistent(tc.fetched, tc.reference, DefaultPriceTolerance))
		})
	}
}
