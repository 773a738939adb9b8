package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyDisplay(t *testing.T) {
	tests := []struct {
		name    string
		money   Money
		display string
		cents   int64
	}{
		{"BRL", BRL(4990), "R$ 49,90", 4990},
		{"BRL thousands", BRL(123450), "R$ 1.234,50", 123450},
		{"BRL millions", BRL(123456789), "R$ 1.234.567,89", 123456789},
		{"BRL negative", BRL(-100000), "R$ -1.000,00", -100000},
		{"USD", USD(1250), "$12.50", 1250},
		{"Zero BRL", Zero("BRL"), "R$ 0,00", 0},
		{"Unknown currency", FromCents(500, "chf"), "CHF 5.00", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.String(); got != tt.display {
				t.Errorf("String: got %q, want %q", got, tt.display)
			}
			if got := tt.money.Cents(); got != tt.cents {
				t.Errorf("Cents: got %d, want %d", got, tt.cents)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	if got := BRL(1000).Add(BRL(550)); !got.Equal(BRL(1550)) {
		t.Errorf("Add: got %v", got)
	}
	if got := BRL(1000).Subtract(BRL(1500)); !got.IsNegative() {
		t.Errorf("Subtract: expected negative, got %v", got)
	}
	if !Zero("brl").IsZero() || !BRL(1).IsPositive() {
		t.Error("predicates disagree with amounts")
	}
	if !NewMoney(decimal.RequireFromString("49.9"), "BRL").Equal(BRL(4990)) {
		t.Error("expected 49.9 BRL to equal BRL(4990)")
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for currency mismatch")
		}
	}()

	_ = BRL(100).Add(USD(100))
}

func TestMoneyJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(BRL(4990))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"amount":"49.90","currency":"brl","display":"R$ 49,90"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(BRL(4990)) {
		t.Errorf("round trip: got %v", back)
	}
}
