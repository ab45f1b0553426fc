package types

import "strings"

// currencyPrecision maps ISO 4217 codes to their minor-unit precision.
// Codes not listed default to 2 decimal places.
var currencyPrecision = map[string]int{
	"bif": 0,
	"clp": 0,
	"djf": 0,
	"gnf": 0,
	"jpy": 0,
	"kmf": 0,
	"krw": 0,
	"mga": 0,
	"pyg": 0,
	"rwf": 0,
	"ugx": 0,
	"vnd": 0,
	"vuv": 0,
	"xaf": 0,
	"xof": 0,
	"xpf": 0,
	"bhd": 3,
	"iqd": 3,
	"jod": 3,
	"kwd": 3,
	"lyd": 3,
	"omr": 3,
	"tnd": 3,
}

// GetCurrencyPrecision returns the number of decimal places for a currency code.
func GetCurrencyPrecision(currency string) int {
	if precision, ok := currencyPrecision[strings.ToLower(currency)]; ok {
		return precision
	}
	return 2
}

// IsValidCurrency reports whether the code looks like an ISO 4217 currency code.
func IsValidCurrency(currency string) bool {
	if len(currency) != 3 {
		return false
	}
	for _, r := range currency {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
