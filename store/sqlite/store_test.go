package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/billbuddy/hourbank/store"
	"github.com/billbuddy/hourbank/store/sqlite"
	"github.com/billbuddy/hourbank/store/storetest"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "hourbank.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s := openTestStore(t)
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return s
	})
}

func TestMigrateIdempotent(t *testing.T) {
	s := openTestStore(t)

	ctx := context.Background()
	for i := range 2 {
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate #%d: %v", i+1, err)
		}
	}

	executor, err := migrate.NewExecutorFor(sqlitedriver.Unwrap(s.DB()))
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	statuses, err := migrate.NewOrchestrator(executor, sqlite.Migrations).Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Name != "hourbank" {
		t.Fatalf("statuses = %+v, want the hourbank group only", statuses)
	}
	if got, want := len(statuses[0].Applied), len(sqlite.Migrations.Migrations()); got != want {
		t.Errorf("applied = %d, want %d", got, want)
	}
	if len(statuses[0].Pending) != 0 {
		t.Errorf("pending = %d, want 0", len(statuses[0].Pending))
	}

	applied, err := executor.ListApplied(ctx)
	if err != nil {
		t.Fatalf("list applied: %v", err)
	}
	if len(applied) != len(sqlite.Migrations.Migrations()) {
		t.Errorf("recorded migrations = %d, want %d", len(applied), len(sqlite.Migrations.Migrations()))
	}
}

func TestMigrateCreatesTables(t *testing.T) {
	s := openTestStore(t)

	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	raw := sqlitedriver.Unwrap(s.DB())
	for _, table := range []string{"hourbank_customers", "hourbank_credit_lots", "hourbank_appointments"} {
		var n int
		err := raw.NewRaw(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(ctx, &n)
		if err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}
}
