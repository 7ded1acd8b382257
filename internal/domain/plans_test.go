package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCatalogByType(t *testing.T) {
	catalog := NewPlanCatalog(nil)

	plan, ok := catalog.ByType(LicenseEnterprise)
	require.True(t, ok)
	assert.Equal(t, 10, plan.MaxDevices)

	_, ok = catalog.ByType("platinum")
	assert.False(t, ok)
}

func TestPlanCatalogPriceRefOverrides(t *testing.T) {
	catalog := NewPlanCatalog(map[string]string{
		LicensePremium: "price_live_123",
	})

	assert.Equal(t, LicensePremium, catalog.TypeForPrice("price_live_123"))
	// The default placeholder is replaced, not duplicated.
	assert.Equal(t, LicenseStandard, catalog.TypeForPrice("price_premium"))
}

func TestTypeForPriceFallsBackToStandard(t *testing.T) {
	catalog := NewPlanCatalog(nil)
	assert.Equal(t, LicenseStandard, catalog.TypeForPrice("price_nobody_knows"))
}

func TestErrorReasonStrings(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNoActiveLicense, "No active license found"},
		{ErrInvalidKey, "Invalid license key"},
		{ErrLicenseExpired, "License has expired"},
		{ErrLicenseRevoked, "License has been revoked"},
		{ErrDeviceLimit, "Device limit reached"},
		{ErrBadSignature, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorReason(tt.err))
	}
}
