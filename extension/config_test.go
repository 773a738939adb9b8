package extension

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestMergeConfigurations(t *testing.T) {
	tests := []struct {
		name         string
		yaml, prog   Config
		wantDriver   string
		wantRetries  int
		wantMigrate  bool
		wantDatabase string
	}{
		{
			name:         "defaults",
			wantDriver:   DriverMemory,
			wantRetries:  3,
			wantDatabase: "hourbank",
		},
		{
			name:         "yaml wins",
			yaml:         Config{Driver: DriverSQLite, ConflictRetries: intPtr(7)},
			prog:         Config{Driver: DriverBolt, ConflictRetries: intPtr(2)},
			wantDriver:   DriverSQLite,
			wantRetries:  7,
			wantDatabase: "hourbank",
		},
		{
			name:         "yaml zero disables retries",
			yaml:         Config{ConflictRetries: intPtr(0)},
			prog:         Config{ConflictRetries: intPtr(2)},
			wantDriver:   DriverMemory,
			wantRetries:  0,
			wantDatabase: "hourbank",
		},
		{
			name:         "programmatic zero disables retries",
			prog:         Config{ConflictRetries: intPtr(0)},
			wantDriver:   DriverMemory,
			wantRetries:  0,
			wantDatabase: "hourbank",
		},
		{
			name:         "programmatic fills gaps",
			yaml:         Config{Database: "billing"},
			prog:         Config{Driver: DriverMongo, DisableMigrate: true},
			wantDriver:   DriverMongo,
			wantRetries:  3,
			wantMigrate:  true,
			wantDatabase: "billing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeConfigurations(tt.yaml, tt.prog)
			if got.Driver != tt.wantDriver {
				t.Errorf("Driver: got %q, want %q", got.Driver, tt.wantDriver)
			}
			if got.Retries() != tt.wantRetries {
				t.Errorf("ConflictRetries: got %d, want %d", got.Retries(), tt.wantRetries)
			}
			if got.DisableMigrate != tt.wantMigrate {
				t.Errorf("DisableMigrate: got %v, want %v", got.DisableMigrate, tt.wantMigrate)
			}
			if got.Database != tt.wantDatabase {
				t.Errorf("Database: got %q, want %q", got.Database, tt.wantDatabase)
			}
			if got.HookTimeout != 5*time.Second {
				t.Errorf("HookTimeout: got %s", got.HookTimeout)
			}
		})
	}
}

func TestWithConflictRetriesZero(t *testing.T) {
	e := New(WithConflictRetries(0))

	cfg := mergeWithDefaults(e.config)
	if cfg.ConflictRetries == nil || cfg.Retries() != 0 {
		t.Fatalf("Retries: got %d, want 0", cfg.Retries())
	}

	// Unset falls back to the default.
	if got := mergeWithDefaults(Config{}).Retries(); got != 3 {
		t.Errorf("default Retries: got %d, want 3", got)
	}
}

func TestWithSearchPath(t *testing.T) {
	tests := []struct {
		name, dsn, schema, want string
	}{
		{"no schema", "postgres://u@h/db", "", "postgres://u@h/db"},
		{"url", "postgres://u@h/db?sslmode=disable", "billing", "postgres://u@h/db?search_path=billing&sslmode=disable"},
		{"keyword", "host=h dbname=db", "billing", "host=h dbname=db search_path=billing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := withSearchPath(tt.dsn, tt.schema)
			if err != nil {
				t.Fatalf("withSearchPath: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Driver: DriverMemory}, false},
		{"empty driver", Config{}, false},
		{"sqlite", Config{Driver: DriverSQLite, DSN: filepath.Join(dir, "hb.db")}, false},
		{"bolt", Config{Driver: DriverBolt, DSN: filepath.Join(dir, "hb.bolt")}, false},
		{"missing dsn", Config{Driver: DriverPostgres}, true},
		{"unknown driver", Config{Driver: "redis", DSN: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := openStore(context.Background(), tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("openStore: %v", err)
			}
			defer func() { _ = s.Close() }()
			if err := s.Migrate(context.Background()); err != nil {
				t.Fatalf("Migrate: %v", err)
			}
			if err := s.Ping(context.Background()); err != nil {
				t.Fatalf("Ping: %v", err)
			}
		})
	}
}
