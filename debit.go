package hourbank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/plugin"
	"github.com/billbuddy/hourbank/store"
	"github.com/billbuddy/hourbank/types"
)

// DebitResult is the outcome of a committed debit.
type DebitResult struct {
	CustomerID  id.CustomerID            `json:"customer_id"`
	Appointment *appointment.Appointment `json:"appointment"`
	Drain       *credit.Drain            `json:"drain"`
}

// Deductions returns the per-lot reductions, oldest lot first.
func (r *DebitResult) Deductions() []credit.Deduction { return r.Drain.Deductions }

// Debit consumes hours from the customer's lots, oldest purchase first,
// and records a completed appointment for them. The whole operation is one
// transaction: when the lots cannot cover hours nothing is written and the
// error wraps ErrInsufficientBalance.
func (b *Bank) Debit(ctx context.Context, customerID id.CustomerID, hours types.Hours, reason string) (*DebitResult, error) {
	return b.run(ctx, customerID, hours, reason, func(ctx context.Context, tx store.Tx, at time.Time) (*appointment.Appointment, error) {
		a := &appointment.Appointment{
			Entity:      types.NewEntityAt(at),
			ID:          id.NewAppointmentID(),
			CustomerID:  customerID,
			ScheduledAt: at,
			Duration:    hours,
			Status:      appointment.StatusCompleted,
			Notes:       appointment.DebitNote(reason),
		}
		if err := tx.CreateAppointment(ctx, a); err != nil {
			return nil, err
		}
		return a, nil
	})
}

// TryDebit is Debit reduced to a success flag. Failures are logged.
func (b *Bank) TryDebit(ctx context.Context, customerID id.CustomerID, hours types.Hours, reason string) bool {
	_, err := b.Debit(ctx, customerID, hours, reason)
	return err == nil
}

// CompleteAppointment debits a scheduled appointment's duration and marks
// it completed in the same transaction. Reason is appended to its notes.
func (b *Bank) CompleteAppointment(ctx context.Context, appointmentID id.AppointmentID, reason string) (*DebitResult, error) {
	booked, err := b.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if booked.Status != appointment.StatusScheduled {
		return nil, fmt.Errorf("%w: status is %s", ErrNotScheduled, booked.Status)
	}

	return b.run(ctx, booked.CustomerID, booked.Duration, reason, func(ctx context.Context, tx store.Tx, at time.Time) (*appointment.Appointment, error) {
		a, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return nil, err
		}
		// Re-checked under the customer lock; a concurrent completion wins.
		if a.Status != appointment.StatusScheduled || !a.Duration.Equal(booked.Duration) {
			return nil, fmt.Errorf("%w: status is %s", ErrNotScheduled, a.Status)
		}
		a.Status = appointment.StatusCompleted
		a.Notes = joinNotes(a.Notes, appointment.DebitNote(reason))
		a.Touch(at)
		if err := tx.UpdateAppointment(ctx, a); err != nil {
			return nil, err
		}
		return a, nil
	})
}

// recordFunc writes the appointment side of a debit inside the transaction.
type recordFunc func(ctx context.Context, tx store.Tx, at time.Time) (*appointment.Appointment, error)

func (b *Bank) run(ctx context.Context, customerID id.CustomerID, hours types.Hours, reason string, record recordFunc) (*DebitResult, error) {
	start := time.Now()
	ev := &plugin.DebitEvent{CustomerID: customerID, Requested: hours, Reason: reason}

	if err := validateDebit(customerID, hours); err != nil {
		ev.Err = err
		b.reject(ctx, ev, start)
		return nil, err
	}

	var result *DebitResult
	attempts, err := b.withRetryCount(ctx, customerID, func() error {
		result = nil
		return b.store.WithCustomerTx(ctx, customerID, func(ctx context.Context, tx store.Tx) error {
			lots, err := tx.AvailableLots(ctx)
			if err != nil {
				return err
			}

			d := credit.Plan(lots, hours)
			if !d.Satisfied() {
				return &InsufficientBalanceError{
					CustomerID: customerID,
					Requested:  hours,
					Available:  d.Drawn(),
				}
			}

			for _, ded := range d.Deductions {
				if err := tx.SetRemaining(ctx, ded.LotID, ded.After); err != nil {
					return err
				}
			}

			a, err := record(ctx, tx, b.now())
			if err != nil {
				return err
			}

			result = &DebitResult{CustomerID: customerID, Appointment: a, Drain: d}
			return nil
		})
	})
	ev.Attempts = attempts

	if err != nil {
		ev.Err = err
		b.reject(ctx, ev, start)
		return nil, err
	}

	ev.Appointment = result.Appointment
	ev.Drain = result.Drain
	ev.Elapsed = time.Since(start)

	b.logger.Info("hours debited",
		"customer_id", customerID.String(),
		"hours", hours.String(),
		"lots", len(result.Drain.Deductions),
		"appointment_id", result.Appointment.ID.String(),
		"attempts", attempts,
	)
	b.plugins.EmitDebitCompleted(ctx, ev)

	return result, nil
}

func (b *Bank) reject(ctx context.Context, ev *plugin.DebitEvent, start time.Time) {
	ev.Elapsed = time.Since(start)

	level := b.logger.Debug
	if !IsBalanceError(ev.Err) && !IsNotFound(ev.Err) && !errors.Is(ev.Err, ErrNotScheduled) {
		level = b.logger.Warn
	}
	level("debit rejected",
		"customer_id", ev.CustomerID.String(),
		"hours", ev.Requested.String(),
		"attempts", ev.Attempts,
		"error", ev.Err,
	)
	b.plugins.EmitDebitRejected(ctx, ev)
}

func validateDebit(customerID id.CustomerID, hours types.Hours) error {
	if customerID.IsNil() {
		return fmt.Errorf("%w: customer id is required", ErrInvalidRequest)
	}
	if !hours.IsPositive() {
		return fmt.Errorf("%w: hours must be positive, got %s", ErrInvalidRequest, hours)
	}
	return nil
}

func joinNotes(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
