// Package observability provides a metrics plugin for hourbank that
// records lifecycle counts and debit latency through a MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnCustomerCreated      = (*MetricsExtension)(nil)
	_ plugin.OnCreditPurchased      = (*MetricsExtension)(nil)
	_ plugin.OnDebitCompleted       = (*MetricsExtension)(nil)
	_ plugin.OnDebitRejected        = (*MetricsExtension)(nil)
	_ plugin.OnAppointmentScheduled = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records hour-bank metrics. Register it as a plugin.
type MetricsExtension struct {
	CustomerCreated Counter

	CreditPurchased Counter
	HoursPurchased  Counter

	DebitCompleted    Counter
	HoursDebited      Counter
	DebitLotsTouched  Histogram
	DebitLatency      Histogram
	DebitAttempts     Histogram
	DebitInsufficient Counter
	DebitInvalid      Counter
	DebitConflict     Counter
	DebitFailed       Counter

	AppointmentScheduled Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		CustomerCreated: factory.Counter("hourbank.customer.created"),

		CreditPurchased: factory.Counter("hourbank.credit.purchased"),
		HoursPurchased:  factory.Counter("hourbank.credit.hours_purchased"),

		DebitCompleted:    factory.Counter("hourbank.debit.completed"),
		HoursDebited:      factory.Counter("hourbank.debit.hours"),
		DebitLotsTouched:  factory.Histogram("hourbank.debit.lots_touched"),
		DebitLatency:      factory.Histogram("hourbank.debit.latency_ms"),
		DebitAttempts:     factory.Histogram("hourbank.debit.attempts"),
		DebitInsufficient: factory.Counter("hourbank.debit.rejected.insufficient"),
		DebitInvalid:      factory.Counter("hourbank.debit.rejected.invalid"),
		DebitConflict:     factory.Counter("hourbank.debit.rejected.conflict"),
		DebitFailed:       factory.Counter("hourbank.debit.rejected.other"),

		AppointmentScheduled: factory.Counter("hourbank.appointment.scheduled"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnCustomerCreated implements plugin.OnCustomerCreated.
func (m *MetricsExtension) OnCustomerCreated(_ context.Context, _ *customer.Customer) error {
	m.CustomerCreated.Inc()
	return nil
}

// OnCreditPurchased implements plugin.OnCreditPurchased.
func (m *MetricsExtension) OnCreditPurchased(_ context.Context, lot *credit.Lot) error {
	m.CreditPurchased.Inc()
	m.HoursPurchased.Add(lot.HoursPurchased.Float64())
	return nil
}

// OnDebitCompleted implements plugin.OnDebitCompleted.
func (m *MetricsExtension) OnDebitCompleted(_ context.Context, ev *plugin.DebitEvent) error {
	m.DebitCompleted.Inc()
	m.HoursDebited.Add(ev.Requested.Float64())
	if ev.Drain != nil {
		m.DebitLotsTouched.Observe(float64(len(ev.Drain.Deductions)))
	}
	m.DebitLatency.Observe(float64(ev.Elapsed.Microseconds()) / 1000)
	m.DebitAttempts.Observe(float64(ev.Attempts))
	return nil
}

// OnDebitRejected implements plugin.OnDebitRejected.
func (m *MetricsExtension) OnDebitRejected(_ context.Context, ev *plugin.DebitEvent) error {
	switch {
	case errors.Is(ev.Err, hourbank.ErrInsufficientBalance):
		m.DebitInsufficient.Inc()
	case errors.Is(ev.Err, hourbank.ErrInvalidRequest):
		m.DebitInvalid.Inc()
	case hourbank.IsRetryable(ev.Err):
		m.DebitConflict.Inc()
	default:
		m.DebitFailed.Inc()
	}
	return nil
}

// OnAppointmentScheduled implements plugin.OnAppointmentScheduled.
func (m *MetricsExtension) OnAppointmentScheduled(_ context.Context, _ *appointment.Appointment) error {
	m.AppointmentScheduled.Inc()
	return nil
}
