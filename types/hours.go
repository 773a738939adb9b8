package types

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Hours is an exact, non-binary quantity of service hours.
//
// Credit balances are drawn down lot by lot and the walk must end on
// exactly zero, so hours are decimals rather than float64. The zero value
// is zero hours.
//
//nolint:recvcheck // Value receivers for arithmetic, pointer receivers for Scan/UnmarshalJSON.
type Hours struct {
	d decimal.Decimal
}

// ZeroHours is zero hours.
var ZeroHours = Hours{}

// NewHours wraps a decimal quantity.
func NewHours(d decimal.Decimal) Hours { return Hours{d: d} }

// HoursFromInt returns n whole hours.
func HoursFromInt(n int64) Hours { return Hours{d: decimal.NewFromInt(n)} }

// HoursFromFloat converts f to the shortest decimal that round-trips it,
// so 1.1 becomes exactly 1.1 and not 1.100000000000000088817841970012523.
func HoursFromFloat(f float64) Hours { return Hours{d: decimal.NewFromFloat(f)} }

// ParseHours parses a decimal string such as "1.5".
func ParseHours(s string) (Hours, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroHours, fmt.Errorf("hours: parse %q: %w", s, err)
	}
	return Hours{d: d}, nil
}

// MustParseHours is like ParseHours but panics on error.
func MustParseHours(s string) Hours {
	h, err := ParseHours(s)
	if err != nil {
		panic(err)
	}
	return h
}

// Add returns h + other.
func (h Hours) Add(other Hours) Hours { return Hours{d: h.d.Add(other.d)} }

// Sub returns h - other.
func (h Hours) Sub(other Hours) Hours { return Hours{d: h.d.Sub(other.d)} }

// Cmp returns -1, 0 or +1 as h is less than, equal to or greater than other.
func (h Hours) Cmp(other Hours) int { return h.d.Cmp(other.d) }

// Equal reports numeric equality, so 1.50 equals 1.5.
func (h Hours) Equal(other Hours) bool { return h.d.Equal(other.d) }

// LessThan reports h < other.
func (h Hours) LessThan(other Hours) bool { return h.d.LessThan(other.d) }

// GreaterThanOrEqual reports h >= other.
func (h Hours) GreaterThanOrEqual(other Hours) bool { return h.d.GreaterThanOrEqual(other.d) }

// IsZero reports h == 0.
func (h Hours) IsZero() bool { return h.d.IsZero() }

// IsPositive reports h > 0.
func (h Hours) IsPositive() bool { return h.d.IsPositive() }

// IsNegative reports h < 0.
func (h Hours) IsNegative() bool { return h.d.IsNegative() }

// Min returns the smaller of h and other.
func (h Hours) Min(other Hours) Hours {
	if h.d.LessThanOrEqual(other.d) {
		return h
	}
	return other
}

// Decimal returns the underlying decimal.
func (h Hours) Decimal() decimal.Decimal { return h.d }

// Float64 returns the nearest float64. Use it for display and metrics only.
func (h Hours) Float64() float64 {
	f, _ := h.d.Float64()
	return f
}

// String returns the plain decimal form, e.g. "2.5".
func (h Hours) String() string { return h.d.String() }

// MarshalJSON encodes hours as a bare JSON number.
func (h Hours) MarshalJSON() ([]byte, error) {
	return []byte(h.d.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (h *Hours) UnmarshalJSON(data []byte) error {
	return h.d.UnmarshalJSON(data)
}

// Value implements driver.Valuer; hours are stored as decimal text.
func (h Hours) Value() (driver.Value, error) {
	return h.d.String(), nil
}

// Scan implements sql.Scanner.
func (h *Hours) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*h = ZeroHours
		return nil
	case float64:
		*h = HoursFromFloat(v)
		return nil
	case int64:
		*h = HoursFromInt(v)
		return nil
	case string:
		parsed, err := ParseHours(v)
		if err != nil {
			return err
		}
		*h = parsed
		return nil
	case []byte:
		parsed, err := ParseHours(string(v))
		if err != nil {
			return err
		}
		*h = parsed
		return nil
	default:
		return fmt.Errorf("hours: cannot scan %T into Hours", src)
	}
}

// SumHours adds up values; an empty list sums to zero.
func SumHours(values ...Hours) Hours {
	total := ZeroHours
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
