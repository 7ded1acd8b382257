package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// same query code runs inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the schema migration. The partial unique index on
// licenses and the primary key on processed_billing_events are load-bearing:
// they are what make duplicate issuance and event replay safe under
// concurrent deliveries.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS accounts (
			id                       TEXT PRIMARY KEY,
			email                    TEXT NOT NULL UNIQUE,
			password                 TEXT NOT NULL,
			subscription_status      TEXT NOT NULL DEFAULT 'free',
			billing_customer_ref     TEXT NOT NULL DEFAULT '',
			billing_subscription_ref TEXT NOT NULL DEFAULT '',
			current_period_end       TIMESTAMPTZ,
			created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_billing_customer
			ON accounts(billing_customer_ref);

		CREATE TABLE IF NOT EXISTS licenses (
			id                       TEXT PRIMARY KEY,
			account_id               TEXT NOT NULL REFERENCES accounts(id),
			license_key              TEXT NOT NULL UNIQUE,
			license_type             TEXT NOT NULL,
			status                   TEXT NOT NULL,
			max_devices              INT NOT NULL CHECK (max_devices >= 1),
			expires_at               TIMESTAMPTZ NOT NULL,
			billing_customer_ref     TEXT NOT NULL DEFAULT '',
			billing_subscription_ref TEXT NOT NULL DEFAULT '',
			created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_licenses_account ON licenses(account_id);
		CREATE UNIQUE INDEX IF NOT EXISTS ux_licenses_account_subscription
			ON licenses(account_id, billing_subscription_ref)
			WHERE status = 'active' AND billing_subscription_ref <> '';

		CREATE TABLE IF NOT EXISTS authorized_devices (
			id             TEXT PRIMARY KEY,
			license_id     TEXT NOT NULL REFERENCES licenses(id),
			device_id      TEXT NOT NULL,
			device_name    TEXT NOT NULL DEFAULT '',
			last_validated TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (license_id, device_id)
		);

		CREATE TABLE IF NOT EXISTS processed_billing_events (
			event_id     TEXT PRIMARY KEY,
			event_type   TEXT NOT NULL DEFAULT '',
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS subscription_history (
			id               TEXT PRIMARY KEY,
			account_id       TEXT NOT NULL REFERENCES accounts(id),
			subscription_ref TEXT NOT NULL DEFAULT '',
			event_type       TEXT NOT NULL,
			status           TEXT NOT NULL,
			period_end       TIMESTAMPTZ,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_subscription_history_account
			ON subscription_history(account_id);
	`
	_, err := pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
