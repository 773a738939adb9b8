// Package appointment defines the appointment record. A completed
// appointment is the consumption side of the prepaid-hour ledger.
package appointment

import (
	"time"

	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/types"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusNoShow    Status = "no_show"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCanceled, StatusNoShow:
		return true
	}
	return false
}

type Appointment struct {
	types.Entity
	ID          id.AppointmentID `json:"id"`
	CustomerID  id.CustomerID    `json:"customer_id"`
	ScheduledAt time.Time        `json:"scheduled_at"`
	Duration    types.Hours      `json:"duration"`
	Status      Status           `json:"status"`
	Notes       string           `json:"notes,omitempty"`
}

// DebitNote is the note attached to an appointment created by a debit.
func DebitNote(reason string) string {
	if reason == "" {
		return "Débito de horas"
	}
	return "Débito de horas: " + reason
}

// CompareNewestFirst orders appointments by ScheduledAt descending, ties
// broken by ID descending.
func CompareNewestFirst(a, b *Appointment) int {
	if c := b.ScheduledAt.Compare(a.ScheduledAt); c != 0 {
		return c
	}
	return b.ID.Compare(a.ID)
}
