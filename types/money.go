package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the currency BillBuddy prices credit packages in.
const DefaultCurrency = "brl"

// Money is an exact amount in a currency's major unit (reais, dollars).
//
// Examples:
//   - BRL(4990) = R$ 49,90
//   - USD(1250) = $12.50
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"` // ISO 4217 lowercase: "brl", "usd"
}

// NewMoney builds a Money value from a major-unit amount.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// FromCents builds a Money value from an amount in the minor unit.
func FromCents(cents int64, currency string) Money {
	return NewMoney(decimal.New(cents, -2), currency)
}

// BRL creates a Money value in Brazilian reais from centavos.
func BRL(centavos int64) Money { return FromCents(centavos, "brl") }

// USD creates a Money value in US dollars from cents.
func USD(cents int64) Money { return FromCents(cents, "usd") }

// Zero returns zero in the given currency.
func Zero(currency string) Money { return NewMoney(decimal.Zero, currency) }

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}
}

// Subtract subtracts other. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}
}

// IsZero reports a zero amount.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsPositive reports an amount above zero.
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// IsNegative reports an amount below zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Equal reports the same amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// Cents returns the amount in the minor unit, rounded half away from zero.
func (m Money) Cents() int64 {
	return m.Amount.Shift(2).Round(0).IntPart()
}

// String returns the amount with its currency symbol. Reais use the
// Brazilian convention ("R$ 1.234,50"); other currencies use "$1234.50".
func (m Money) String() string {
	fixed := m.Amount.StringFixed(2)
	if m.Currency == "brl" {
		return "R$ " + formatBrazilian(fixed)
	}
	return currencySymbol(m.Currency) + fixed
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount.StringFixed(2),
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. The display field is ignored.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = NewMoney(raw.Amount, raw.Currency)
	return nil
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

func currencySymbol(currency string) string {
	switch strings.ToLower(currency) {
	case "usd":
		return "$"
	case "eur":
		return "€"
	case "gbp":
		return "£"
	}
	return strings.ToUpper(currency) + " "
}

// formatBrazilian turns "-1234.50" into "-1.234,50".
func formatBrazilian(fixed string) string {
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "," + frac
}
