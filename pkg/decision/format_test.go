package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCost(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, "0만원"},
		{950, "950만원"},
		{1_500, "1,500만원"},
		{9_999.4, "9,999만원"},
		{10_000, "1.0억원"},
		{15_000, "1.5억원"},
		{123_456, "12.3억원"},
		{1_250_000, "125.0억원"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCost(tt.amount))
		})
	}
}

func TestCostUnits_Custom(t *testing.T) {
	units := CostUnits{BaseLabel: " USD", LargeLabel: "M USD", LargeFactor: 1_000_000}

	assert.Equal(t, "250,000 USD", units.Format(250_000))
	assert.Equal(t, "2.5M USD", units.Format(2_500_000))
}

func TestCostUnits_ZeroValueUsesDefaults(t *testing.T) {
	assert.Equal(t, "1,500만원", CostUnits{}.Format(1_500))
}
