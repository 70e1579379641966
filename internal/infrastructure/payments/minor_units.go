package payments

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Gateways quote amounts in the currency's smallest unit (paise, cents).
// The conversion happens only here, at the adapter boundary; the rest of the
// service works in exact decimals.

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}

func fromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-2)
}

// asInt64 normalizes the number representations a decoded provider payload
// can carry. Minor-unit amounts are integers, so the float64 path is exact.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
