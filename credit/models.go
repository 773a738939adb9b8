// Package credit models prepaid hour lots and the oldest-first drain that
// consumes them.
package credit

import (
	"time"

	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/types"
)

// Lot is one purchased batch of prepaid service hours.
// RemainingHours is never negative and only ever decreases after purchase.
type Lot struct {
	types.Entity
	ID             id.LotID      `json:"id"`
	CustomerID     id.CustomerID `json:"customer_id"`
	PurchaseDate   time.Time     `json:"purchase_date"`
	HoursPurchased types.Hours   `json:"hours_purchased"`
	RemainingHours types.Hours   `json:"remaining_hours"`
	PricePaid      types.Money   `json:"price_paid"`
	Notes          string        `json:"notes,omitempty"`
}

// Available reports whether the lot still has hours to draw from.
func (l *Lot) Available() bool { return l.RemainingHours.IsPositive() }

// Consumed returns how many hours have been drawn from the lot.
func (l *Lot) Consumed() types.Hours { return l.HoursPurchased.Sub(l.RemainingHours) }

// Balance summarizes a customer's prepaid hours across all lots.
type Balance struct {
	CustomerID      id.CustomerID `json:"customer_id"`
	Purchased       types.Hours   `json:"purchased"`
	Remaining       types.Hours   `json:"remaining"`
	Consumed        types.Hours   `json:"consumed"`
	Lots            int           `json:"lots"`
	AvailableLots   int           `json:"available_lots"`
	OldestAvailable *time.Time    `json:"oldest_available,omitempty"`
}

// Covers reports whether the balance can satisfy a debit of hours.
func (b *Balance) Covers(hours types.Hours) bool {
	return b.Remaining.GreaterThanOrEqual(hours)
}

// Summarize folds lots into a Balance.
func Summarize(customerID id.CustomerID, lots []*Lot) *Balance {
	b := &Balance{CustomerID: customerID}
	for _, l := range lots {
		b.Lots++
		b.Purchased = b.Purchased.Add(l.HoursPurchased)
		b.Remaining = b.Remaining.Add(l.RemainingHours)
		if l.Available() {
			b.AvailableLots++
			if b.OldestAvailable == nil || l.PurchaseDate.Before(*b.OldestAvailable) {
				t := l.PurchaseDate
				b.OldestAvailable = &t
			}
		}
	}
	b.Consumed = b.Purchased.Sub(b.Remaining)
	return b
}
