package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/backend/internal/domain"
)

func TestDeviceListOrdering(t *testing.T) {
	store := NewMemoryStore()
	devices := store.Devices()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	validated := base.Add(time.Hour)
	rows := []*domain.AuthorizedDevice{
		{ID: "row-1", LicenseID: "lic-1", DeviceID: "dev-a", LastValidated: &validated, CreatedAt: base},
		{ID: "row-2", LicenseID: "lic-1", DeviceID: "dev-b", CreatedAt: base.Add(time.Minute)},
		{ID: "row-3", LicenseID: "lic-1", DeviceID: "dev-c", CreatedAt: base},
		{ID: "row-4", LicenseID: "lic-2", DeviceID: "dev-other", CreatedAt: base},
	}
	for _, d := range rows {
		require.NoError(t, devices.Insert(ctx, d))
	}

	listed, err := devices.ListByLicense(ctx, "lic-1")
	require.NoError(t, err)
	require.Len(t, listed, 3)

	// Never-validated rows sort first (oldest created leading), then by
	// last-validated ascending. The head of the list is the eviction victim.
	assert.Equal(t, "dev-c", listed[0].DeviceID)
	assert.Equal(t, "dev-b", listed[1].DeviceID)
	assert.Equal(t, "dev-a", listed[2].DeviceID)
}

func TestDeviceInsertDuplicatePair(t *testing.T) {
	store := NewMemoryStore()
	devices := store.Devices()
	ctx := context.Background()

	d := &domain.AuthorizedDevice{ID: "row-1", LicenseID: "lic-1", DeviceID: "dev-a", CreatedAt: time.Now()}
	require.NoError(t, devices.Insert(ctx, d))

	dup := &domain.AuthorizedDevice{ID: "row-2", LicenseID: "lic-1", DeviceID: "dev-a", CreatedAt: time.Now()}
	err := devices.Insert(ctx, dup)
	assert.ErrorIs(t, err, ErrUniqueViolation)
}

func TestLicenseInsertDuplicateActiveSubscription(t *testing.T) {
	store := NewMemoryStore()
	licenses := store.Licenses()
	ctx := context.Background()

	first := &domain.License{
		ID: "lic-1", AccountID: "acct-1", Key: domain.NewLicenseKey(),
		Status: domain.LicenseStatusActive, BillingSubRef: "sub_1",
	}
	require.NoError(t, licenses.Insert(ctx, first))

	dup := &domain.License{
		ID: "lic-2", AccountID: "acct-1", Key: domain.NewLicenseKey(),
		Status: domain.LicenseStatusActive, BillingSubRef: "sub_1",
	}
	assert.ErrorIs(t, licenses.Insert(ctx, dup), ErrUniqueViolation)

	// The constraint only binds active licenses; a superseded expired one
	// does not block re-issuance.
	require.NoError(t, licenses.MarkExpired(ctx, "lic-1"))
	dup.Key = domain.NewLicenseKey()
	assert.NoError(t, licenses.Insert(ctx, dup))
}

func TestEventMarkProcessedIdempotent(t *testing.T) {
	store := NewMemoryStore()
	events := store.Events()
	ctx := context.Background()

	processed, err := events.IsProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, events.MarkProcessed(ctx, "evt_1", "invoice.payment_succeeded"))
	require.NoError(t, events.MarkProcessed(ctx, "evt_1", "invoice.payment_succeeded"))

	processed, err = events.IsProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, processed)
}
