// Package customer defines the customer record that owns credit lots and
// appointments.
package customer

import (
	"strings"

	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/types"
)

// Customer is a client of the service provider.
type Customer struct {
	types.Entity
	ID       id.CustomerID     `json:"id"`
	Name     string            `json:"name"`
	Email    string            `json:"email,omitempty"`
	Phone    string            `json:"phone,omitempty"` // WhatsApp notification target
	Notes    string            `json:"notes,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CompareByName orders customers by name, ties broken by ID.
func CompareByName(a, b *Customer) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return a.ID.Compare(b.ID)
}
