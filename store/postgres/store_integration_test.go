package postgres_test

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/billbuddy/hourbank/store"
	"github.com/billbuddy/hourbank/store/postgres"
	"github.com/billbuddy/hourbank/store/storetest"
)

// Integration tests are opt-in and require HOURBANK_POSTGRES_URL. Each
// store gets its own schema through the DSN search_path.

var schemaSeq atomic.Int64

func TestConformance(t *testing.T) {
	dsn := mustTestDSN(t)

	storetest.Run(t, func(t *testing.T) store.Store {
		return mustOpenMigrated(t, dsn)
	})
}

func TestMigrateRecordsGroup(t *testing.T) {
	s := mustOpenMigrated(t, mustTestDSN(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// A second run applies nothing.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	executor, err := migrate.NewExecutorFor(pgdriver.Unwrap(s.DB()))
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	statuses, err := migrate.NewOrchestrator(executor, postgres.Migrations).Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("groups = %d, want 1", len(statuses))
	}
	if got, want := len(statuses[0].Applied), len(postgres.Migrations.Migrations()); got != want {
		t.Errorf("applied = %d, want %d", got, want)
	}
	if len(statuses[0].Pending) != 0 {
		t.Errorf("pending = %d, want 0", len(statuses[0].Pending))
	}
}

func mustTestDSN(t *testing.T) string {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("HOURBANK_POSTGRES_URL"))
	if raw == "" {
		t.Skip("integration test skipped: HOURBANK_POSTGRES_URL is not set")
	}
	return raw
}

// mustOpenMigrated creates a fresh schema and returns a migrated store
// whose connections resolve tables there.
func mustOpenMigrated(t *testing.T, dsn string) *postgres.Store {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	admin, err := postgres.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(func() { _ = admin.Close() })

	schema := fmt.Sprintf("hourbank_it_%d_%d", time.Now().UnixNano(), schemaSeq.Add(1))
	raw := pgdriver.Unwrap(admin.DB())
	if _, err := raw.NewRaw(`CREATE SCHEMA ` + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = raw.NewRaw(`DROP SCHEMA IF EXISTS ` + schema + ` CASCADE`).Exec(ctx)
	})

	s, err := postgres.Open(ctx, withSearchPath(t, dsn, schema), postgres.WithLockTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func withSearchPath(t *testing.T, dsn, schema string) string {
	t.Helper()

	if !strings.Contains(dsn, "://") {
		return dsn + " search_path=" + schema
	}
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String()
}
