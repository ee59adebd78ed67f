package enums

import "strings"

// Currency is the ISO-4217 lowercase currency code used by the gateway.
type Currency string

const (
	CurrencyUSD Currency = "usd"
	CurrencyEUR Currency = "eur"
	CurrencyGBP Currency = "gbp"
	CurrencyJPY Currency = "jpy"
)

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// NormalizeCurrency lowercases a gateway-supplied code, falling back to USD
// when the gateway omits one.
func NormalizeCurrency(value string) Currency {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return CurrencyUSD
	}
	return Currency(v)
}
