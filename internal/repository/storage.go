package repository

import (
	"context"
	"errors"
	"time"

	"github.com/keygate/backend/internal/domain"
)

// ErrUniqueViolation is returned when an insert hits a unique constraint.
// Callers that need idempotent inserts (license issuance, event dedup)
// detect it and re-read instead of failing.
var ErrUniqueViolation = errors.New("unique constraint violation")

// Store aggregates the persistence interfaces. The Postgres implementation
// backs production; the memory implementation backs the test suite and
// DATABASE_URL=memory development mode.
type Store interface {
	Accounts() AccountStore
	Licenses() LicenseStore
	Devices() DeviceStore
	Events() EventStore

	Ping(ctx context.Context) error
	Close()
}

// AccountStore handles accounts and their subscription audit trail.
type AccountStore interface {
	Create(ctx context.Context, a *domain.Account) error
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByBillingCustomer(ctx context.Context, customerRef string) (*domain.Account, error)

	// UpdateSubscription mutates the billing fields of an account. A nil
	// periodEnd clears the stored period end.
	UpdateSubscription(ctx context.Context, accountID, customerRef, subRef, status string, periodEnd *time.Time) error

	AppendHistory(ctx context.Context, h *domain.SubscriptionHistory) error
}

// LicenseStore handles license rows. Find methods return (nil, nil) when
// no row matches.
type LicenseStore interface {
	// Insert writes a new license. ErrUniqueViolation is returned when an
	// active license already exists for the same
	// (account, billing subscription) pair.
	Insert(ctx context.Context, l *domain.License) error

	FindByKey(ctx context.Context, key string) (*domain.License, error)

	// FindActiveByAccount returns the most recently issued active license.
	FindActiveByAccount(ctx context.Context, accountID string) (*domain.License, error)

	// FindActiveBySub returns the active license referencing the given
	// billing subscription for the account.
	FindActiveBySub(ctx context.Context, accountID, subRef string) (*domain.License, error)

	ListByAccount(ctx context.Context, accountID string) ([]*domain.License, error)

	// MarkExpired flips an active license to expired.
	MarkExpired(ctx context.Context, licenseID string) error
}

// DeviceOps are the device mutations available inside a serialization
// scope. Rows are addressed by their row ID, not the caller-supplied
// device identifier.
type DeviceOps interface {
	// ListByLicense returns devices ordered by last_validated ascending,
	// unset first, ties broken by insertion order.
	ListByLicense(ctx context.Context, licenseID string) ([]*domain.AuthorizedDevice, error)
	Insert(ctx context.Context, d *domain.AuthorizedDevice) error
	Touch(ctx context.Context, rowID string, at time.Time) error
	Delete(ctx context.Context, rowID string) error
}

// DeviceStore handles authorized devices. Serialize runs fn while holding
// an exclusive per-license lock so that concurrent authorizations for the
// same license cannot both observe "under quota"; authorizations for
// different licenses do not block each other.
type DeviceStore interface {
	DeviceOps

	Serialize(ctx context.Context, licenseID string, fn func(ctx context.Context, ops DeviceOps) error) error

	// DeleteByDeviceID removes a device by its opaque identifier.
	// Idempotent: deleting an absent device is not an error.
	DeleteByDeviceID(ctx context.Context, licenseID, deviceID string) error
}

// EventStore tracks which billing event IDs have been applied.
type EventStore interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// MarkProcessed records an event ID durably. Safe to call twice for
	// the same ID; concurrent marks are resolved by the store's unique
	// constraint.
	MarkProcessed(ctx context.Context, eventID, eventType string) error
}
