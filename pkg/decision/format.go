package decision

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CostUnits controls how costs are displayed. Amounts are always held in base units;
// from LargeFactor upward they are shown in the large unit instead.
type CostUnits struct {
	BaseLabel   string
	LargeLabel  string
	LargeFactor float64
}

// DefaultCostUnits uses 만원 as the base unit and 억원 (10,000 만원) as the large unit.
func DefaultCostUnits() CostUnits {
	return CostUnits{
		BaseLabel:   "만원",
		LargeLabel:  "억원",
		LargeFactor: 10_000,
	}
}

func (u CostUnits) withDefaults() CostUnits {
	d := DefaultCostUnits()
	if u.BaseLabel == "" {
		u.BaseLabel = d.BaseLabel
	}
	if u.LargeLabel == "" {
		u.LargeLabel = d.LargeLabel
	}
	if u.LargeFactor <= 0 {
		u.LargeFactor = d.LargeFactor
	}
	return u
}

// Format renders an amount, e.g. 1500 -> "1,500만원" and 15000 -> "1.5억원".
// It is display only and never feeds back into ranking.
func (u CostUnits) Format(amount float64) string {
	u = u.withDefaults()
	p := message.NewPrinter(language.English)
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return p.Sprintf("%v%s", amount, u.BaseLabel)
	}
	if math.Abs(amount) >= u.LargeFactor {
		return p.Sprintf("%.1f%s", amount/u.LargeFactor, u.LargeLabel)
	}
	return p.Sprintf("%d%s", int64(math.Round(amount)), u.BaseLabel)
}

// FormatCost formats an amount with the default units.
func FormatCost(amount float64) string {
	return DefaultCostUnits().Format(amount)
}
