package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/observability"
	"github.com/billbuddy/hourbank/store/memory"
	"github.com/billbuddy/hourbank/types"
)

func TestMetricsExtension(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewPedanticRegistry()
	factory := observability.NewPrometheusFactory(reg)
	metrics := observability.NewMetricsExtension(factory)

	bank := hourbank.New(memory.New(),
		hourbank.WithPlugin(metrics),
		hourbank.WithClock(func() time.Time { return time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC) }),
	)
	if err := bank.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = bank.Stop() }()

	c := &customer.Customer{Name: "Ana"}
	if err := bank.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	for _, hours := range []string{"2", "3"} {
		lot := &credit.Lot{CustomerID: c.ID, HoursPurchased: types.MustParseHours(hours), PricePaid: types.BRL(10000)}
		if err := bank.PurchaseCredit(ctx, lot); err != nil {
			t.Fatalf("PurchaseCredit: %v", err)
		}
	}

	if _, err := bank.Debit(ctx, c.ID, types.MustParseHours("2.5"), "session"); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if bank.TryDebit(ctx, c.ID, types.MustParseHours("10"), "too much") {
		t.Fatal("expected insufficient balance")
	}
	if bank.TryDebit(ctx, c.ID, types.MustParseHours("0"), "") {
		t.Fatal("expected invalid request")
	}

	tests := []struct {
		name   string
		metric prometheus.Collector
		want   float64
	}{
		{"customers", metrics.CustomerCreated.(prometheus.Collector), 1},
		{"lots", metrics.CreditPurchased.(prometheus.Collector), 2},
		{"hours purchased", metrics.HoursPurchased.(prometheus.Collector), 5},
		{"debits", metrics.DebitCompleted.(prometheus.Collector), 1},
		{"hours debited", metrics.HoursDebited.(prometheus.Collector), 2.5},
		{"insufficient", metrics.DebitInsufficient.(prometheus.Collector), 1},
		{"invalid", metrics.DebitInvalid.(prometheus.Collector), 1},
		{"conflict", metrics.DebitConflict.(prometheus.Collector), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.metric); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(metrics.DebitLotsTouched.(prometheus.Collector)); n != 1 {
		t.Errorf("lots touched histogram: got %d series, want 1", n)
	}
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg)

	a := f.Counter("hourbank.debit.completed")
	b := f.Counter("hourbank.debit.completed")
	a.Inc()
	b.Inc()
	if got := testutil.ToFloat64(a.(prometheus.Collector)); got != 2 {
		t.Fatalf("got %v, want 2", got)
	}

	// A second factory on the same registry picks up the registered collector.
	g := observability.NewPrometheusFactory(reg)
	g.Counter("hourbank.debit.completed").Inc()
	if got := testutil.ToFloat64(a.(prometheus.Collector)); got != 3 {
		t.Fatalf("got %v after second factory, want 3", got)
	}

	count, err := testutil.GatherAndCount(reg, "hourbank_debit_completed_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("got %d series, want 1", count)
	}
}
