package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keygate/backend/internal/domain"
)

// LicenseRepository handles database operations for licenses.
type LicenseRepository struct {
	db *pgxpool.Pool
}

// NewLicenseRepository creates a new LicenseRepository.
func NewLicenseRepository(db *pgxpool.Pool) *LicenseRepository {
	return &LicenseRepository{db: db}
}

const licenseColumns = `id, account_id, license_key, license_type, status,
	max_devices, expires_at, billing_customer_ref, billing_subscription_ref,
	created_at, updated_at`

// Insert writes a new license row. The partial unique index on
// (account_id, billing_subscription_ref) surfaces as ErrUniqueViolation so
// the registry can fall back to the already-issued license.
func (r *LicenseRepository) Insert(ctx context.Context, l *domain.License) error {
	query := `
		INSERT INTO licenses (id, account_id, license_key, license_type, status,
			max_devices, expires_at, billing_customer_ref, billing_subscription_ref,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		l.ID, l.AccountID, l.Key, l.Type, l.Status,
		l.MaxDevices, l.ExpiresAt, l.BillingCustomerRef, l.BillingSubRef,
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("license for subscription %s: %w", l.BillingSubRef, ErrUniqueViolation)
		}
		return fmt.Errorf("failed to insert license: %w", err)
	}
	return nil
}

func (r *LicenseRepository) findOne(ctx context.Context, query string, args ...any) (*domain.License, error) {
	row := r.db.QueryRow(ctx, query, args...)

	var l domain.License
	err := row.Scan(
		&l.ID, &l.AccountID, &l.Key, &l.Type, &l.Status,
		&l.MaxDevices, &l.ExpiresAt, &l.BillingCustomerRef, &l.BillingSubRef,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find license: %w", err)
	}
	return &l, nil
}

// FindByKey returns a license by its key.
func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*domain.License, error) {
	return r.findOne(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE license_key = $1`, key)
}

// FindActiveByAccount returns the most recently issued active license for
// an account.
func (r *LicenseRepository) FindActiveByAccount(ctx context.Context, accountID string) (*domain.License, error) {
	query := `
		SELECT ` + licenseColumns + `
		FROM licenses
		WHERE account_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.findOne(ctx, query, accountID)
}

// FindActiveBySub returns the active license referencing the given billing
// subscription for an account.
func (r *LicenseRepository) FindActiveBySub(ctx context.Context, accountID, subRef string) (*domain.License, error) {
	query := `
		SELECT ` + licenseColumns + `
		FROM licenses
		WHERE account_id = $1 AND billing_subscription_ref = $2 AND status = 'active'
	`
	return r.findOne(ctx, query, accountID, subRef)
}

// ListByAccount returns all licenses for an account, newest first.
func (r *LicenseRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.License, error) {
	query := `
		SELECT ` + licenseColumns + `
		FROM licenses WHERE account_id = $1 ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*domain.License
	for rows.Next() {
		var l domain.License
		if err := rows.Scan(
			&l.ID, &l.AccountID, &l.Key, &l.Type, &l.Status,
			&l.MaxDevices, &l.ExpiresAt, &l.BillingCustomerRef, &l.BillingSubRef,
			&l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, &l)
	}
	return licenses, rows.Err()
}

// MarkExpired flips an active license to expired. The status guard keeps
// the transition one-way.
func (r *LicenseRepository) MarkExpired(ctx context.Context, licenseID string) error {
	query := `
		UPDATE licenses SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`
	_, err := r.db.Exec(ctx, query, licenseID)
	if err != nil {
		return fmt.Errorf("failed to expire license: %w", err)
	}
	return nil
}
