// Package audithook bridges hourbank lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any audit product. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnCustomerCreated      = (*Extension)(nil)
	_ plugin.OnCreditPurchased      = (*Extension)(nil)
	_ plugin.OnDebitCompleted       = (*Extension)(nil)
	_ plugin.OnDebitRejected        = (*Extension)(nil)
	_ plugin.OnAppointmentScheduled = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges hourbank lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// OnCustomerCreated implements plugin.OnCustomerCreated.
func (e *Extension) OnCustomerCreated(ctx context.Context, c *customer.Customer) error {
	return e.record(ctx, ActionCustomerCreated, SeverityInfo, OutcomeSuccess,
		ResourceCustomer, c.ID.String(), CategoryCustomer, nil,
		"name", c.Name,
	)
}

// OnCreditPurchased implements plugin.OnCreditPurchased.
func (e *Extension) OnCreditPurchased(ctx context.Context, lot *credit.Lot) error {
	return e.record(ctx, ActionCreditPurchased, SeverityInfo, OutcomeSuccess,
		ResourceCreditLot, lot.ID.String(), CategoryBilling, nil,
		"customer_id", lot.CustomerID.String(),
		"hours", lot.HoursPurchased.String(),
		"price", lot.PricePaid.String(),
	)
}

// OnDebitCompleted implements plugin.OnDebitCompleted.
func (e *Extension) OnDebitCompleted(ctx context.Context, ev *plugin.DebitEvent) error {
	var apptID string
	if ev.Appointment != nil {
		apptID = ev.Appointment.ID.String()
	}
	lots := 0
	if ev.Drain != nil {
		lots = len(ev.Drain.Deductions)
	}
	return e.record(ctx, ActionDebitCompleted, SeverityInfo, OutcomeSuccess,
		ResourceAppointment, apptID, CategoryBilling, nil,
		"customer_id", ev.CustomerID.String(),
		"hours", ev.Requested.String(),
		"reason", ev.Reason,
		"lots_touched", lots,
	)
}

// OnDebitRejected implements plugin.OnDebitRejected. Insufficient balance
// is a business outcome and is recorded as a warning; anything else is an
// error.
func (e *Extension) OnDebitRejected(ctx context.Context, ev *plugin.DebitEvent) error {
	severity := SeverityError
	kv := []any{
		"customer_id", ev.CustomerID.String(),
		"hours", ev.Requested.String(),
		"reason", ev.Reason,
		"attempts", ev.Attempts,
	}
	var ibe *hourbank.InsufficientBalanceError
	if errors.As(ev.Err, &ibe) {
		severity = SeverityWarning
		kv = append(kv, "available", ibe.Available.String())
	}
	return e.record(ctx, ActionDebitRejected, severity, OutcomeFailure,
		ResourceCustomer, ev.CustomerID.String(), CategoryBilling, ev.Err,
		kv...,
	)
}

// OnAppointmentScheduled implements plugin.OnAppointmentScheduled.
func (e *Extension) OnAppointmentScheduled(ctx context.Context, a *appointment.Appointment) error {
	return e.record(ctx, ActionAppointmentScheduled, SeverityInfo, OutcomeSuccess,
		ResourceAppointment, a.ID.String(), CategoryScheduling, nil,
		"customer_id", a.CustomerID.String(),
		"scheduled_at", a.ScheduledAt,
		"duration", a.Duration.String(),
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
