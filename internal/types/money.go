package types

import (
	"fmt"
	"strings"

	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/shopspring/decimal"
)

// Money is a fixed-point monetary amount in a single currency.
// It is never backed by a float; all arithmetic goes through decimal.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney constructs a Money value after validating the currency code.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if !IsValidCurrency(currency) {
		return Money{}, ierr.NewError("invalid currency code").
			WithHint("Currency must be a 3-letter ISO 4217 code").
			WithReportableDetails(map[string]interface{}{
				"currency": currency,
			}).
			Mark(ierr.ErrValidation)
	}
	return Money{Amount: amount, Currency: strings.ToLower(currency)}, nil
}

// MustNewMoney is NewMoney for statically known inputs; panics on bad currency.
func MustNewMoney(amount decimal.Decimal, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns a zero amount in the given currency.
func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: strings.ToLower(currency)}
}

// Add returns m + other. Cross-currency addition is rejected, never coerced.
func (m Money) Add(other Money) (Money, error) {
	if !strings.EqualFold(m.Currency, other.Currency) {
		return Money{}, ierr.NewError("currency mismatch").
			WithHint("All amounts within one computation must share a currency").
			WithReportableDetails(map[string]interface{}{
				"currency":       m.Currency,
				"other_currency": other.Currency,
			}).
			Mark(ierr.ErrConfiguration)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// MulUint64 returns m scaled by an integer quantity.
func (m Money) MulUint64(quantity uint64) Money {
	return Money{
		Amount:   m.Amount.Mul(decimal.NewFromUint64(quantity)),
		Currency: m.Currency,
	}
}

// Mul returns m scaled by an arbitrary decimal factor.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(factor), Currency: m.Currency}
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

// Equal reports whether two values have the same currency and amount.
func (m Money) Equal(other Money) bool {
	return strings.EqualFold(m.Currency, other.Currency) && m.Amount.Equal(other.Amount)
}

// Round returns the amount rounded to the currency's minor-unit precision.
func (m Money) Round() Money {
	return Money{
		Amount:   m.Amount.Round(int32(GetCurrencyPrecision(m.Currency))),
		Currency: m.Currency,
	}
}

// Display renders the amount at currency precision, e.g. "10.00 USD".
func (m Money) Display() string {
	precision := int32(GetCurrencyPrecision(m.Currency))
	return fmt.Sprintf("%s %s", m.Amount.Round(precision).StringFixed(precision), strings.ToUpper(m.Currency))
}
