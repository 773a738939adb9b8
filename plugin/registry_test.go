package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/plugin"
)

func quietRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type named string

func (n named) Name() string { return string(n) }

type customerHook struct {
	named
	seen []string
	err  error
}

func (h *customerHook) OnCustomerCreated(_ context.Context, c *customer.Customer) error {
	h.seen = append(h.seen, c.Name)
	return h.err
}

type panicHook struct{ named }

func (panicHook) OnCustomerCreated(context.Context, *customer.Customer) error {
	panic("boom")
}

type slowHook struct {
	named
	release chan struct{}
}

func (h slowHook) OnCustomerCreated(context.Context, *customer.Customer) error {
	<-h.release
	return nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := quietRegistry()
	if err := r.Register(named("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(named("a")); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Fatalf("Count: got %d, want 1", r.Count())
	}
	if r.Get("a") == nil || r.Get("b") != nil {
		t.Fatal("Get returned the wrong plugin")
	}
}

func TestEmitDispatchesInRegistrationOrder(t *testing.T) {
	r := quietRegistry()
	first := &customerHook{named: "first"}
	second := &customerHook{named: "second", err: errors.New("ignored")}
	third := &customerHook{named: "third"}
	for _, p := range []plugin.Plugin{first, named("no-hooks"), second, third} {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	r.EmitCustomerCreated(context.Background(), &customer.Customer{Name: "Clara"})

	for _, h := range []*customerHook{first, second, third} {
		if len(h.seen) != 1 || h.seen[0] != "Clara" {
			t.Errorf("%s: got %v", h.Name(), h.seen)
		}
	}
	if got := r.List(); len(got) != 4 || got[0].Name() != "first" {
		t.Errorf("List: got %d plugins", len(got))
	}
}

func TestEmitSurvivesPanicsAndTimeouts(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	r := quietRegistry().WithTimeout(20 * time.Millisecond)
	after := &customerHook{named: "after"}
	for _, p := range []plugin.Plugin{panicHook{"panics"}, slowHook{"slow", release}, after} {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		r.EmitCustomerCreated(context.Background(), &customer.Customer{Name: "Davi"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a slow hook")
	}
	if len(after.seen) != 1 {
		t.Fatalf("hook after a panic and a timeout was not called: %v", after.seen)
	}
}
