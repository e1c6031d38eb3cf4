package payment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// zero-decimal currencies per the gateway's docs; everything else uses cents
var minorExponent = map[string]int32{
	"bif": 0, "clp": 0, "djf": 0, "gnf": 0, "jpy": 0, "kmf": 0, "krw": 0,
	"mga": 0, "pyg": 0, "rwf": 0, "ugx": 0, "vnd": 0, "vuv": 0, "xaf": 0,
	"xof": 0, "xpf": 0,
}

func exponent(currency string) int32 {
	if e, ok := minorExponent[strings.ToLower(currency)]; ok {
		return e
	}
	return 2
}

// AmountMinor converts unitPrice*qty to the currency's minor unit using
// banker's rounding.
func AmountMinor(unitPrice decimal.Decimal, qty int, currency string) (int64, error) {
	if qty <= 0 || unitPrice.IsNegative() {
		return 0, fmt.Errorf("%w: price %s x %d", ErrInvalidAmount, unitPrice, qty)
	}
	total := unitPrice.Mul(decimal.NewFromInt(int64(qty)))
	return total.Shift(exponent(currency)).RoundBank(0).IntPart(), nil
}

// FromMinor is the inverse of AmountMinor for display.
func FromMinor(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -exponent(currency))
}
