package store

import (
	"context"

	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/types"
)

// Store is the unified storage interface for hourbank entities.
type Store interface {
	customer.Store
	credit.Store
	appointment.Store

	// WithCustomerTx runs fn inside one transaction that holds an exclusive
	// lock on the customer for its whole duration. Concurrent calls for the
	// same customer are serialized. If fn returns an error every write made
	// through tx is discarded and that error is returned unchanged.
	//
	// Returns ErrCustomerNotFound when the customer does not exist, and
	// ErrStorageConflict when the backend aborts the transaction because of
	// a concurrent modification.
	WithCustomerTx(ctx context.Context, customerID id.CustomerID, fn TxFunc) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// TxFunc is the body of a customer transaction.
type TxFunc func(ctx context.Context, tx Tx) error

// Tx is the view of one customer's ledger inside WithCustomerTx.
type Tx interface {
	// AvailableLots returns the customer's lots with remaining hours,
	// oldest purchase first (ties by lot ID).
	AvailableLots(ctx context.Context) ([]*credit.Lot, error)

	// SetRemaining overwrites a lot's remaining hours. The lot must belong
	// to the transaction's customer and remaining must not be negative.
	SetRemaining(ctx context.Context, lotID id.LotID, remaining types.Hours) error

	CreateAppointment(ctx context.Context, a *appointment.Appointment) error
	GetAppointment(ctx context.Context, appointmentID id.AppointmentID) (*appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, a *appointment.Appointment) error
}

// Page applies limit/offset to an already ordered slice.
func Page[T any](items []T, limit, offset int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}
