package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
)

// DefaultHookTimeout bounds how long a single hook call may block.
const DefaultHookTimeout = 5 * time.Second

// Registry manages registered plugins. Hook implementations are cached
// per interface at registration so dispatch never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                 []OnInit
	onShutdown             []OnShutdown
	onCustomerCreated      []OnCustomerCreated
	onCreditPurchased      []OnCreditPurchased
	onDebitCompleted       []OnDebitCompleted
	onDebitRejected        []OnDebitRejected
	onAppointmentScheduled []OnAppointmentScheduled
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnCustomerCreated); ok {
		r.onCustomerCreated = append(r.onCustomerCreated, v)
		hooks = append(hooks, "OnCustomerCreated")
	}
	if v, ok := p.(OnCreditPurchased); ok {
		r.onCreditPurchased = append(r.onCreditPurchased, v)
		hooks = append(hooks, "OnCreditPurchased")
	}
	if v, ok := p.(OnDebitCompleted); ok {
		r.onDebitCompleted = append(r.onDebitCompleted, v)
		hooks = append(hooks, "OnDebitCompleted")
	}
	if v, ok := p.(OnDebitRejected); ok {
		r.onDebitRejected = append(r.onDebitRejected, v)
		hooks = append(hooks, "OnDebitRejected")
	}
	if v, ok := p.(OnAppointmentScheduled); ok {
		r.onAppointmentScheduled = append(r.onAppointmentScheduled, v)
		hooks = append(hooks, "OnAppointmentScheduled")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every hook in hooks, logging failures. Hook errors
// never reach the caller.
func emit[H Plugin](ctx context.Context, r *Registry, hook string, hooks []H, call func(H) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, func() error { return call(p) }); err != nil {
			r.logger.Warn("plugin hook failed",
				"hook", hook,
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

func snapshot[H any](r *Registry, hooks *[]H) []H {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *hooks
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, bank any) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, bank)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitCustomerCreated emits a customer created event.
func (r *Registry) EmitCustomerCreated(ctx context.Context, c *customer.Customer) {
	emit(ctx, r, "OnCustomerCreated", snapshot(r, &r.onCustomerCreated), func(p OnCustomerCreated) error {
		return p.OnCustomerCreated(ctx, c)
	})
}

// EmitCreditPurchased emits a credit purchased event.
func (r *Registry) EmitCreditPurchased(ctx context.Context, lot *credit.Lot) {
	emit(ctx, r, "OnCreditPurchased", snapshot(r, &r.onCreditPurchased), func(p OnCreditPurchased) error {
		return p.OnCreditPurchased(ctx, lot)
	})
}

// EmitDebitCompleted emits a debit completed event.
func (r *Registry) EmitDebitCompleted(ctx context.Context, ev *DebitEvent) {
	emit(ctx, r, "OnDebitCompleted", snapshot(r, &r.onDebitCompleted), func(p OnDebitCompleted) error {
		return p.OnDebitCompleted(ctx, ev)
	})
}

// EmitDebitRejected emits a debit rejected event.
func (r *Registry) EmitDebitRejected(ctx context.Context, ev *DebitEvent) {
	emit(ctx, r, "OnDebitRejected", snapshot(r, &r.onDebitRejected), func(p OnDebitRejected) error {
		return p.OnDebitRejected(ctx, ev)
	})
}

// EmitAppointmentScheduled emits an appointment scheduled event.
func (r *Registry) EmitAppointmentScheduled(ctx context.Context, a *appointment.Appointment) {
	emit(ctx, r, "OnAppointmentScheduled", snapshot(r, &r.onAppointmentScheduled), func(p OnAppointmentScheduled) error {
		return p.OnAppointmentScheduled(ctx, a)
	})
}

// callWithTimeout runs fn, giving up after the registry timeout. A hook
// that overruns keeps running in its goroutine; only the wait is abandoned.
func (r *Registry) callWithTimeout(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin: panic: %v", rec)
			}
		}()
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("plugin: hook timed out after %s", r.timeout)
	}
}
