package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyScale is the number of fractional digits kept for stored amounts.
const CurrencyScale = 2

// Money represents a monetary value in a specific currency.
// Amounts are decimal to avoid floating point errors on ledger balances.
type Money struct {
	Amount   decimal.Decimal
	Currency string // ISO 4217
}

// NewMoney creates a new Money instance, normalizing the currency code.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{
		Amount:   amount,
		Currency: NormalizeCurrency(currency),
	}
}

// ParseAmount parses a decimal amount string such as "102427.94".
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// Round rounds an amount to the currency scale using banker's rounding.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(CurrencyScale)
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// NormalizeCurrency upper-cases and trims an ISO currency code.
func NormalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// Add returns m + other. Both values must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub returns m - other. Both values must share a currency.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// String returns the string representation of the money.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(CurrencyScale), m.Currency)
}
