package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keygate/backend/internal/domain"
)

// DeviceRepository handles database operations for authorized devices.
type DeviceRepository struct {
	db *pgxpool.Pool
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// deviceOps runs device queries against either the pool or a transaction.
type deviceOps struct {
	q querier
}

func (o deviceOps) ListByLicense(ctx context.Context, licenseID string) ([]*domain.AuthorizedDevice, error) {
	query := `
		SELECT id, license_id, device_id, device_name, last_validated, created_at
		FROM authorized_devices
		WHERE license_id = $1
		ORDER BY last_validated ASC NULLS FIRST, created_at ASC
	`
	rows, err := o.q.Query(ctx, query, licenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*domain.AuthorizedDevice
	for rows.Next() {
		var d domain.AuthorizedDevice
		if err := rows.Scan(
			&d.ID, &d.LicenseID, &d.DeviceID, &d.DeviceName, &d.LastValidated, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, &d)
	}
	return devices, rows.Err()
}

func (o deviceOps) Insert(ctx context.Context, d *domain.AuthorizedDevice) error {
	query := `
		INSERT INTO authorized_devices (id, license_id, device_id, device_name,
			last_validated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := o.q.Exec(ctx, query,
		d.ID, d.LicenseID, d.DeviceID, d.DeviceName, d.LastValidated, d.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("device %s: %w", d.DeviceID, ErrUniqueViolation)
		}
		return fmt.Errorf("failed to insert device: %w", err)
	}
	return nil
}

func (o deviceOps) Touch(ctx context.Context, rowID string, at time.Time) error {
	_, err := o.q.Exec(ctx,
		`UPDATE authorized_devices SET last_validated = $1 WHERE id = $2`, at, rowID)
	if err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}
	return nil
}

func (o deviceOps) Delete(ctx context.Context, rowID string) error {
	_, err := o.q.Exec(ctx, `DELETE FROM authorized_devices WHERE id = $1`, rowID)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return nil
}

func (r *DeviceRepository) ListByLicense(ctx context.Context, licenseID string) ([]*domain.AuthorizedDevice, error) {
	return deviceOps{q: r.db}.ListByLicense(ctx, licenseID)
}

func (r *DeviceRepository) Insert(ctx context.Context, d *domain.AuthorizedDevice) error {
	return deviceOps{q: r.db}.Insert(ctx, d)
}

func (r *DeviceRepository) Touch(ctx context.Context, rowID string, at time.Time) error {
	return deviceOps{q: r.db}.Touch(ctx, rowID, at)
}

func (r *DeviceRepository) Delete(ctx context.Context, rowID string) error {
	return deviceOps{q: r.db}.Delete(ctx, rowID)
}

// Serialize runs fn inside a transaction that holds a row lock on the
// license. Two concurrent authorizations for the same license queue here;
// different licenses lock different rows and proceed in parallel.
func (r *DeviceRepository) Serialize(ctx context.Context, licenseID string, fn func(ctx context.Context, ops DeviceOps) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `SELECT id FROM licenses WHERE id = $1 FOR UPDATE`, licenseID); err != nil {
		return fmt.Errorf("failed to lock license: %w", err)
	}

	if err := fn(ctx, deviceOps{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit authorization: %w", err)
	}
	return nil
}

// DeleteByDeviceID removes a device by its opaque identifier. Idempotent.
func (r *DeviceRepository) DeleteByDeviceID(ctx context.Context, licenseID, deviceID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM authorized_devices WHERE license_id = $1 AND device_id = $2`,
		licenseID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to deactivate device: %w", err)
	}
	return nil
}
