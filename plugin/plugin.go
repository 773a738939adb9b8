// Package plugin provides an extensible plugin system for hourbank.
// Plugins hook into customer, credit and debit lifecycle events.
package plugin

import (
	"context"
	"time"

	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// DebitEvent describes one debit attempt after it has finished.
// Appointment and Drain are set only for completed debits; Err only for
// rejected ones.
type DebitEvent struct {
	CustomerID  id.CustomerID
	Requested   types.Hours
	Reason      string
	Appointment *appointment.Appointment
	Drain       *credit.Drain
	Attempts    int
	Elapsed     time.Duration
	Err         error
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, bank any) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Customer and credit hooks
// ──────────────────────────────────────────────────

// OnCustomerCreated is called after a customer is stored.
type OnCustomerCreated interface {
	Plugin
	OnCustomerCreated(ctx context.Context, c *customer.Customer) error
}

// OnCreditPurchased is called after a credit lot is stored.
type OnCreditPurchased interface {
	Plugin
	OnCreditPurchased(ctx context.Context, lot *credit.Lot) error
}

// ──────────────────────────────────────────────────
// Debit hooks
// ──────────────────────────────────────────────────

// OnDebitCompleted is called after a debit transaction commits.
type OnDebitCompleted interface {
	Plugin
	OnDebitCompleted(ctx context.Context, ev *DebitEvent) error
}

// OnDebitRejected is called when a debit fails for any reason.
type OnDebitRejected interface {
	Plugin
	OnDebitRejected(ctx context.Context, ev *DebitEvent) error
}

// ──────────────────────────────────────────────────
// Appointment hooks
// ──────────────────────────────────────────────────

// OnAppointmentScheduled is called after a future appointment is stored.
type OnAppointmentScheduled interface {
	Plugin
	OnAppointmentScheduled(ctx context.Context, a *appointment.Appointment) error
}
