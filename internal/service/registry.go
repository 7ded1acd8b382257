package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/keygate/backend/internal/domain"
	"github.com/keygate/backend/internal/repository"
)

// LicenseRegistry owns license records: issuance, resolution, and the lazy
// expiry transition. There is no background sweep; expiry is evaluated on
// every read.
type LicenseRegistry struct {
	licenses repository.LicenseStore
	plans    domain.PlanCatalog
	now      func() time.Time
}

// NewLicenseRegistry creates a new LicenseRegistry.
func NewLicenseRegistry(licenses repository.LicenseStore, plans domain.PlanCatalog) *LicenseRegistry {
	return &LicenseRegistry{
		licenses: licenses,
		plans:    plans,
		now:      time.Now,
	}
}

// Issue mints a new active license for an account. Issuing twice for the
// same (account, billing subscription) pair returns the license from the
// first call: the reconciler is invoked more than once per subscription and
// must not mint duplicates. The check-then-insert race is closed by the
// store's unique constraint, not by the lookup.
func (r *LicenseRegistry) Issue(ctx context.Context, accountID, licenseType, customerRef, subRef string) (*domain.License, error) {
	plan, ok := r.plans.ByType(licenseType)
	if !ok {
		return nil, fmt.Errorf("unknown license type %q", licenseType)
	}

	if subRef != "" {
		existing, err := r.licenses.FindActiveBySub(ctx, accountID, subRef)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			log.Printf("license %s already issued for subscription %s", existing.ID, subRef)
			return existing, nil
		}
	}

	now := r.now()
	license := &domain.License{
		ID:                 domain.NewLicenseID(),
		AccountID:          accountID,
		Key:                domain.NewLicenseKey(),
		Type:               licenseType,
		Status:             domain.LicenseStatusActive,
		MaxDevices:         plan.MaxDevices,
		ExpiresAt:          now.Add(plan.Duration),
		BillingCustomerRef: customerRef,
		BillingSubRef:      subRef,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := r.licenses.Insert(ctx, license); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) && subRef != "" {
			// Lost the race to a concurrent issuance for the same
			// subscription; the winner's license is the license.
			existing, ferr := r.licenses.FindActiveBySub(ctx, accountID, subRef)
			if ferr == nil && existing != nil {
				log.Printf("concurrent issuance for subscription %s, reusing license %s", subRef, existing.ID)
				return existing, nil
			}
			return nil, fmt.Errorf("%v: %w", err, domain.ErrDuplicateLicense)
		}
		return nil, err
	}

	log.Printf("issued %s license %s for account %s", licenseType, license.ID, accountID)
	return license, nil
}

// ResolveActive returns the most recently issued active license for an
// account. A license whose expiry has passed is flipped to expired as a
// side effect of the read.
func (r *LicenseRegistry) ResolveActive(ctx context.Context, accountID string) (*domain.License, error) {
	license, err := r.licenses.FindActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if license == nil {
		return nil, domain.ErrNoActiveLicense
	}
	return r.expireLazily(ctx, license)
}

// ValidateKey resolves a license by its key. The same lazy-expiry rule
// applies as for ResolveActive.
func (r *LicenseRegistry) ValidateKey(ctx context.Context, key string) (*domain.License, error) {
	license, err := r.licenses.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if license == nil {
		return nil, domain.ErrInvalidKey
	}

	switch license.Status {
	case domain.LicenseStatusRevoked:
		return nil, domain.ErrLicenseRevoked
	case domain.LicenseStatusExpired:
		return nil, domain.ErrLicenseExpired
	case domain.LicenseStatusActive:
		return r.expireLazily(ctx, license)
	default:
		return nil, domain.ErrNoActiveLicense
	}
}

func (r *LicenseRegistry) expireLazily(ctx context.Context, license *domain.License) (*domain.License, error) {
	if !license.Expired(r.now()) {
		return license, nil
	}
	if err := r.licenses.MarkExpired(ctx, license.ID); err != nil {
		return nil, err
	}
	log.Printf("license %s expired at %s", license.ID, license.ExpiresAt.Format(time.RFC3339))
	return nil, domain.ErrLicenseExpired
}

// ListByAccount returns all licenses for an account, newest first.
func (r *LicenseRegistry) ListByAccount(ctx context.Context, accountID string) ([]*domain.License, error) {
	return r.licenses.ListByAccount(ctx, accountID)
}
