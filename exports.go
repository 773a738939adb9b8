package hourbank

import "github.com/billbuddy/hourbank/types"

// Re-exported so callers rarely need the types package directly.

// Hours is re-exported from types package.
type Hours = types.Hours

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

var (
	ParseHours     = types.ParseHours
	MustParseHours = types.MustParseHours
	HoursFromInt   = types.HoursFromInt
	HoursFromFloat = types.HoursFromFloat
	BRL            = types.BRL
	USD            = types.USD
	NewEntity      = types.NewEntity
)
