package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ParsePrice converts any price representation the backend or catalog emits
// into a decimal amount in major currency units.
// Source data is inconsistent: prices arrive as JSON numbers, quoted decimal
// strings ("99.00"), and occasionally integers. Unparseable or negative
// values collapse to zero rather than erroring; a bad price must never block
// a cart mutation.
// Examples: "99.00" → 99.00, 1234.56 → 1234.56, "" → 0, "junk" → 0
func ParsePrice(v any) decimal.Decimal {
	var d decimal.Decimal
	switch p := v.(type) {
	case decimal.Decimal:
		d = p
	case string:
		if p == "" {
			return decimal.Zero
		}
		parsed, err := decimal.NewFromString(p)
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	case float64:
		d = decimal.NewFromFloat(p)
	case int:
		d = decimal.NewFromInt(int64(p))
	case int64:
		d = decimal.NewFromInt(p)
	case json.Number:
		parsed, err := decimal.NewFromString(p.String())
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	default:
		return decimal.Zero
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Cents converts a major-unit amount to minor units (cents) with banker-safe
// rounding. Used for display and for backends that expect minor units.
// Examples: 99.00 → 9900, 1234.56 → 123456
func Cents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FormatPrice renders a major-unit amount with two decimal places.
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(2)
}
