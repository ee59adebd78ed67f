package payments

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currencies Stripe treats as zero-decimal: amounts arrive as whole
// units rather than hundredths.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {},
	"krw": {}, "mga": {}, "pyg": {}, "rwf": {}, "ugx": {}, "vnd": {},
	"vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

// AmountFromMinorUnits converts a gateway amount in minor units into a
// decimal major-unit value for storage.
func AmountFromMinorUnits(amount int64, currency string) decimal.Decimal {
	cur := strings.ToLower(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[cur]; ok {
		return decimal.NewFromInt(amount)
	}
	return decimal.NewFromInt(amount).Shift(-2)
}

// MinorUnitsFromCents converts an order total held in cents into the
// minor-unit amount the gateway expects for the currency.
func MinorUnitsFromCents(cents int, currency string) int64 {
	cur := strings.ToLower(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[cur]; ok {
		return int64(cents) / 100
	}
	return int64(cents)
}
