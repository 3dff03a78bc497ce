package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

const priceScale = 2

// ParsePrice parses a user supplied amount and normalizes it to two decimal places.
// It returns false when the text is not a number or the rounded amount is not positive.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, false
	}
	d = d.Round(priceScale)
	if !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(priceScale)
}
