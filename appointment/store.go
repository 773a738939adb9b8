package appointment

import (
	"context"
	"time"

	"github.com/billbuddy/hourbank/id"
)

type Store interface {
	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, appointmentID id.AppointmentID) (*Appointment, error)
	ListAppointments(ctx context.Context, customerID id.CustomerID, opts ListOpts) ([]*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) error
}

// ListOpts filters a customer's appointments, newest first.
type ListOpts struct {
	Status Status
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}

// Match reports whether a satisfies the status and time-window filters.
func (o ListOpts) Match(a *Appointment) bool {
	if o.Status != "" && a.Status != o.Status {
		return false
	}
	if !o.Start.IsZero() && a.ScheduledAt.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && !a.ScheduledAt.Before(o.End) {
		return false
	}
	return true
}
