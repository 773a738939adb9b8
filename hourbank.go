package hourbank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/plugin"
	"github.com/billbuddy/hourbank/store"
	"github.com/billbuddy/hourbank/types"
)

// DefaultConflictRetries is how many times a debit is retried after the
// store reports a concurrent-modification conflict.
const DefaultConflictRetries = 3

// Bank is the prepaid-hour ledger engine.
type Bank struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	now     func() time.Time

	conflictRetries int
	retryBackoff    time.Duration
}

// New creates a new Bank on top of s.
func New(s store.Store, opts ...Option) *Bank {
	b := &Bank{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		now:             func() time.Time { return time.Now().UTC() },
		conflictRetries: DefaultConflictRetries,
		retryBackoff:    10 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Option configures a Bank instance.
type Option func(*Bank)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bank) {
		b.logger = logger
		b.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(b *Bank) {
		if err := b.plugins.Register(p); err != nil {
			b.logger.Warn("hourbank: plugin not registered",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// WithClock overrides the time source used for debit timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Bank) {
		b.now = now
	}
}

// WithConflictRetries sets how many times a conflicting debit is retried.
// Zero disables retries.
func WithConflictRetries(n int) Option {
	return func(b *Bank) {
		if n >= 0 {
			b.conflictRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay between conflict retries. The
// delay grows linearly with the attempt number.
func WithRetryBackoff(d time.Duration) Option {
	return func(b *Bank) {
		b.retryBackoff = d
	}
}

// Store returns the underlying store.
func (b *Bank) Store() store.Store { return b.store }

// Plugins returns the plugin registry.
func (b *Bank) Plugins() *plugin.Registry { return b.plugins }

// Start migrates the store and initializes plugins.
func (b *Bank) Start(ctx context.Context) error {
	if err := b.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	b.plugins.EmitInit(ctx, b)

	b.logger.Info("hourbank started",
		"plugins", b.plugins.Count(),
		"conflict_retries", b.conflictRetries,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (b *Bank) Stop() error {
	b.plugins.EmitShutdown(context.Background())
	return b.store.Close()
}

// ──────────────────────────────────────────────────
// Customers
// ──────────────────────────────────────────────────

// CreateCustomer stores a new customer, assigning an ID when unset.
func (b *Bank) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return ValidationError{Field: "name", Message: "must not be empty"}
	}
	if c.ID.IsNil() {
		c.ID = id.NewCustomerID()
	}
	c.Entity = types.NewEntityAt(b.now())

	if err := b.store.CreateCustomer(ctx, c); err != nil {
		return err
	}

	b.plugins.EmitCustomerCreated(ctx, c)
	return nil
}

// GetCustomer retrieves a customer by ID.
func (b *Bank) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	return b.store.GetCustomer(ctx, customerID)
}

// ListCustomers lists customers ordered by name.
func (b *Bank) ListCustomers(ctx context.Context, opts customer.ListOpts) ([]*customer.Customer, error) {
	return b.store.ListCustomers(ctx, opts)
}

// UpdateCustomer saves changes to a customer's contact details.
func (b *Bank) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return ValidationError{Field: "name", Message: "must not be empty"}
	}
	c.Touch(b.now())
	return b.store.UpdateCustomer(ctx, c)
}

// ──────────────────────────────────────────────────
// Credit lots
// ──────────────────────────────────────────────────

// PurchaseCredit records a newly bought lot of hours. The lot starts full.
func (b *Bank) PurchaseCredit(ctx context.Context, lot *credit.Lot) error {
	if lot.CustomerID.IsNil() {
		return ValidationError{Field: "customer_id", Message: "is required"}
	}
	if !lot.HoursPurchased.IsPositive() {
		return ValidationError{Field: "hours_purchased", Message: "must be positive"}
	}
	if lot.PricePaid.IsNegative() {
		return ValidationError{Field: "price_paid", Message: "must not be negative"}
	}
	if _, err := b.store.GetCustomer(ctx, lot.CustomerID); err != nil {
		return err
	}

	now := b.now()
	if lot.ID.IsNil() {
		lot.ID = id.NewLotID()
	}
	if lot.PurchaseDate.IsZero() {
		lot.PurchaseDate = now
	}
	if lot.PricePaid.Currency == "" {
		lot.PricePaid.Currency = types.DefaultCurrency
	}
	lot.RemainingHours = lot.HoursPurchased
	lot.Entity = types.NewEntityAt(now)

	if err := b.store.CreateLot(ctx, lot); err != nil {
		return err
	}

	b.logger.Info("credit purchased",
		"customer_id", lot.CustomerID.String(),
		"lot_id", lot.ID.String(),
		"hours", lot.HoursPurchased.String(),
	)
	b.plugins.EmitCreditPurchased(ctx, lot)
	return nil
}

// GetLot retrieves a credit lot by ID.
func (b *Bank) GetLot(ctx context.Context, lotID id.LotID) (*credit.Lot, error) {
	return b.store.GetLot(ctx, lotID)
}

// ListLots lists a customer's lots, oldest purchase first.
func (b *Bank) ListLots(ctx context.Context, customerID id.CustomerID, opts credit.ListOpts) ([]*credit.Lot, error) {
	return b.store.ListLots(ctx, customerID, opts)
}

// Balance totals a customer's lots.
func (b *Bank) Balance(ctx context.Context, customerID id.CustomerID) (*credit.Balance, error) {
	if _, err := b.store.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	lots, err := b.store.ListLots(ctx, customerID, credit.ListOpts{})
	if err != nil {
		return nil, err
	}
	return credit.Summarize(customerID, lots), nil
}

// ──────────────────────────────────────────────────
// Appointments
// ──────────────────────────────────────────────────

// ScheduleAppointment books a future session. No hours are drawn until
// the appointment is completed.
func (b *Bank) ScheduleAppointment(ctx context.Context, a *appointment.Appointment) error {
	if a.CustomerID.IsNil() {
		return ValidationError{Field: "customer_id", Message: "is required"}
	}
	if !a.Duration.IsPositive() {
		return ValidationError{Field: "duration", Message: "must be positive"}
	}
	if a.ScheduledAt.IsZero() {
		return ValidationError{Field: "scheduled_at", Message: "is required"}
	}
	if _, err := b.store.GetCustomer(ctx, a.CustomerID); err != nil {
		return err
	}

	if a.ID.IsNil() {
		a.ID = id.NewAppointmentID()
	}
	a.Status = appointment.StatusScheduled
	a.Entity = types.NewEntityAt(b.now())

	if err := b.store.CreateAppointment(ctx, a); err != nil {
		return err
	}

	b.plugins.EmitAppointmentScheduled(ctx, a)
	return nil
}

// GetAppointment retrieves an appointment by ID.
func (b *Bank) GetAppointment(ctx context.Context, appointmentID id.AppointmentID) (*appointment.Appointment, error) {
	return b.store.GetAppointment(ctx, appointmentID)
}

// ListAppointments lists a customer's appointments, most recent first.
func (b *Bank) ListAppointments(ctx context.Context, customerID id.CustomerID, opts appointment.ListOpts) ([]*appointment.Appointment, error) {
	return b.store.ListAppointments(ctx, customerID, opts)
}

// CancelAppointment marks a scheduled appointment canceled. No hours move.
func (b *Bank) CancelAppointment(ctx context.Context, appointmentID id.AppointmentID) (*appointment.Appointment, error) {
	a, err := b.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	var canceled *appointment.Appointment
	err = b.withRetry(ctx, a.CustomerID, func() error {
		return b.store.WithCustomerTx(ctx, a.CustomerID, func(ctx context.Context, tx store.Tx) error {
			current, err := tx.GetAppointment(ctx, appointmentID)
			if err != nil {
				return err
			}
			if current.Status != appointment.StatusScheduled {
				return fmt.Errorf("%w: status is %s", ErrNotScheduled, current.Status)
			}
			current.Status = appointment.StatusCanceled
			current.Touch(b.now())
			if err := tx.UpdateAppointment(ctx, current); err != nil {
				return err
			}
			canceled = current
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return canceled, nil
}

// ──────────────────────────────────────────────────
// Retry
// ──────────────────────────────────────────────────

// withRetry reruns fn while it fails with ErrStorageConflict, up to the
// configured number of retries.
func (b *Bank) withRetry(ctx context.Context, customerID id.CustomerID, fn func() error) error {
	_, err := b.withRetryCount(ctx, customerID, fn)
	return err
}

func (b *Bank) withRetryCount(ctx context.Context, customerID id.CustomerID, fn func() error) (int, error) {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, ErrStorageConflict) || attempt > b.conflictRetries {
			return attempt, err
		}

		b.logger.Warn("storage conflict, retrying",
			"customer_id", customerID.String(),
			"attempt", attempt,
			"error", err,
		)

		if err := sleepCtx(ctx, b.retryBackoff*time.Duration(attempt)); err != nil {
			return attempt, err
		}
	}
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
