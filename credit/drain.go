package credit

import (
	"slices"
	"time"

	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/types"
)

// Deduction is the portion of a debit drawn from one lot.
type Deduction struct {
	LotID        id.LotID    `json:"lot_id"`
	PurchaseDate time.Time   `json:"purchase_date"`
	Hours        types.Hours `json:"hours"`
	Before       types.Hours `json:"before"`
	After        types.Hours `json:"after"`
}

// Drain is the outcome of walking a customer's lots for one debit.
type Drain struct {
	Requested  types.Hours `json:"requested"`
	Deductions []Deduction `json:"deductions"`
	// Shortfall is what the lots could not cover. Zero means satisfied.
	Shortfall types.Hours `json:"shortfall"`
}

// Satisfied reports whether the lots covered the whole request.
func (d *Drain) Satisfied() bool { return d.Shortfall.IsZero() }

// Drawn returns the total hours taken across all deductions.
func (d *Drain) Drawn() types.Hours {
	total := types.ZeroHours
	for _, ded := range d.Deductions {
		total = total.Add(ded.Hours)
	}
	return total
}

// CompareFIFO orders lots oldest purchase first, ties broken by lot ID.
func CompareFIFO(a, b *Lot) int {
	if c := a.PurchaseDate.Compare(b.PurchaseDate); c != 0 {
		return c
	}
	return a.ID.Compare(b.ID)
}

// SortFIFO sorts lots in consumption order.
func SortFIFO(lots []*Lot) {
	slices.SortFunc(lots, CompareFIFO)
}

// Plan walks lots oldest-first and works out how much to take from each
// to cover requested. Lots are not modified; callers apply the returned
// deductions inside their transaction, and only when Satisfied.
//
// The walk stops as soon as the request is covered, so lots after the one
// that finishes the debit are never touched. requested must be positive.
func Plan(lots []*Lot, requested types.Hours) *Drain {
	ordered := slices.Clone(lots)
	SortFIFO(ordered)

	d := &Drain{Requested: requested}
	left := requested

	for _, lot := range ordered {
		if !left.IsPositive() {
			break
		}
		if !lot.Available() {
			continue
		}

		take := lot.RemainingHours.Min(left)
		d.Deductions = append(d.Deductions, Deduction{
			LotID:        lot.ID,
			PurchaseDate: lot.PurchaseDate,
			Hours:        take,
			Before:       lot.RemainingHours,
			After:        lot.RemainingHours.Sub(take),
		})
		left = left.Sub(take)
	}

	if left.IsPositive() {
		d.Shortfall = left
	}
	return d
}
