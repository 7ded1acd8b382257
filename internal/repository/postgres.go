package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool     *pgxpool.Pool
	accounts *AccountRepository
	licenses *LicenseRepository
	devices  *DeviceRepository
	events   *EventRepository
}

// NewPostgresStore creates a PostgresStore over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool:     pool,
		accounts: NewAccountRepository(pool),
		licenses: NewLicenseRepository(pool),
		devices:  NewDeviceRepository(pool),
		events:   NewEventRepository(pool),
	}
}

func (s *PostgresStore) Accounts() AccountStore { return s.accounts }
func (s *PostgresStore) Licenses() LicenseStore { return s.licenses }
func (s *PostgresStore) Devices() DeviceStore   { return s.devices }
func (s *PostgresStore) Events() EventStore     { return s.events }

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() { s.pool.Close() }
