package types

import (
	"encoding/json"
	"testing"
)

func TestHoursArithmeticIsExact(t *testing.T) {
	// 0.1 + 0.2 - 0.3 is not zero in float64.
	got := HoursFromFloat(0.1).Add(HoursFromFloat(0.2)).Sub(HoursFromFloat(0.3))
	if !got.IsZero() {
		t.Fatalf("expected exact zero, got %s", got)
	}
}

func TestHoursComparison(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Hours
		cmp      int
		lessThan bool
	}{
		{"Equal", HoursFromInt(2), MustParseHours("2.00"), 0, false},
		{"Less", MustParseHours("1.5"), HoursFromInt(2), -1, true},
		{"Greater", HoursFromInt(3), MustParseHours("2.75"), 1, false},
		{"Zero vs zero value", ZeroHours, Hours{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Cmp(tt.b); got != tt.cmp {
				t.Errorf("Cmp: got %d, want %d", got, tt.cmp)
			}
			if got := tt.a.LessThan(tt.b); got != tt.lessThan {
				t.Errorf("LessThan: got %v, want %v", got, tt.lessThan)
			}
			if got := tt.a.GreaterThanOrEqual(tt.b); got == tt.lessThan {
				t.Errorf("GreaterThanOrEqual: got %v, want %v", got, !tt.lessThan)
			}
			if got := tt.a.Equal(tt.b); got != (tt.cmp == 0) {
				t.Errorf("Equal: got %v, want %v", got, tt.cmp == 0)
			}
		})
	}
}

func TestHoursPredicates(t *testing.T) {
	tests := []struct {
		name                     string
		h                        Hours
		zero, positive, negative bool
	}{
		{"Zero", ZeroHours, true, false, false},
		{"Positive", MustParseHours("0.25"), false, true, false},
		{"Negative", HoursFromInt(-1), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.h.IsZero() != tt.zero {
				t.Errorf("IsZero: got %v", tt.h.IsZero())
			}
			if tt.h.IsPositive() != tt.positive {
				t.Errorf("IsPositive: got %v", tt.h.IsPositive())
			}
			if tt.h.IsNegative() != tt.negative {
				t.Errorf("IsNegative: got %v", tt.h.IsNegative())
			}
		})
	}
}

func TestHoursMin(t *testing.T) {
	a, b := HoursFromInt(2), HoursFromInt(5)
	if !a.Min(b).Equal(a) || !b.Min(a).Equal(a) {
		t.Errorf("Min: expected %s", a)
	}
}

func TestParseHoursRejectsGarbage(t *testing.T) {
	if _, err := ParseHours("two"); err == nil {
		t.Error("expected error for non-numeric input")
	}
}

func TestHoursJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Hours Hours `json:"hours"`
	}{MustParseHours("1.5")})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"hours":1.5}` {
		t.Errorf("got %s", data)
	}

	for _, in := range []string{`{"hours":2.25}`, `{"hours":"2.25"}`} {
		var out struct {
			Hours Hours `json:"hours"`
		}
		if err := json.Unmarshal([]byte(in), &out); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if !out.Hours.Equal(MustParseHours("2.25")) {
			t.Errorf("unmarshal %s: got %s", in, out.Hours)
		}
	}
}

func TestHoursScan(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want Hours
	}{
		{"nil", nil, ZeroHours},
		{"string", "3.5", MustParseHours("3.5")},
		{"bytes", []byte("0.75"), MustParseHours("0.75")},
		{"float", 1.25, MustParseHours("1.25")},
		{"int", int64(4), HoursFromInt(4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h Hours
			if err := h.Scan(tt.src); err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if !h.Equal(tt.want) {
				t.Errorf("got %s, want %s", h, tt.want)
			}
		})
	}

	var h Hours
	if err := h.Scan(true); err == nil {
		t.Error("expected error scanning a bool")
	}
}

func TestSumHours(t *testing.T) {
	got := SumHours(MustParseHours("1.5"), MustParseHours("2.25"), HoursFromInt(1))
	if !got.Equal(MustParseHours("4.75")) {
		t.Errorf("got %s", got)
	}
	if !SumHours().IsZero() {
		t.Error("empty sum should be zero")
	}
}
