package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the hourbank tables.
var Migrations = migrate.NewGroup("hourbank")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_hourbank_customers",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS hourbank_customers (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    email       TEXT NOT NULL DEFAULT '',
    phone       TEXT NOT NULL DEFAULT '',
    notes       TEXT NOT NULL DEFAULT '',
    metadata    JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS hourbank_customers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_hourbank_credit_lots",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS hourbank_credit_lots (
    id               TEXT PRIMARY KEY,
    customer_id      TEXT NOT NULL REFERENCES hourbank_customers (id),
    purchase_date    TIMESTAMPTZ NOT NULL,
    hours_purchased  NUMERIC(12, 4) NOT NULL CHECK (hours_purchased > 0),
    remaining_hours  NUMERIC(12, 4) NOT NULL,
    price_amount     NUMERIC(14, 2) NOT NULL DEFAULT 0,
    price_currency   TEXT NOT NULL DEFAULT 'brl',
    notes            TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT chk_hourbank_lots_remaining CHECK (remaining_hours >= 0 AND remaining_hours <= hours_purchased)
);

CREATE INDEX IF NOT EXISTS idx_hourbank_lots_fifo
    ON hourbank_credit_lots (customer_id, purchase_date, id)
    WHERE remaining_hours > 0;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS hourbank_credit_lots`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_hourbank_appointments",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS hourbank_appointments (
    id              TEXT PRIMARY KEY,
    customer_id     TEXT NOT NULL REFERENCES hourbank_customers (id),
    scheduled_at    TIMESTAMPTZ NOT NULL,
    duration_hours  NUMERIC(12, 4) NOT NULL CHECK (duration_hours > 0),
    status          TEXT NOT NULL,
    notes           TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_hourbank_appts_customer
    ON hourbank_appointments (customer_id, scheduled_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS hourbank_appointments`)
				return err
			},
		},
	)
}
