package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/backend/internal/contextkeys"
	"github.com/keygate/backend/internal/domain"
	"github.com/keygate/backend/internal/repository"
	"github.com/keygate/backend/internal/service"
)

func newLicenseFixture(t *testing.T) (*LicenseHandler, *service.LicenseRegistry) {
	t.Helper()
	store := repository.NewMemoryStore()
	registry := service.NewLicenseRegistry(store.Licenses(), domain.NewPlanCatalog(nil))
	authorizer := service.NewDeviceAuthorizer(store.Devices())
	return NewLicenseHandler(registry, authorizer), registry
}

func postValidate(t *testing.T, h *LicenseHandler, body ValidateRequest) (*httptest.ResponseRecorder, ValidateResponse) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/licenses/validate", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.Validate(rec, req)

	var resp ValidateResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	}
	return rec, resp
}

func TestValidateSucceeds(t *testing.T) {
	h, registry := newLicenseFixture(t)
	license, err := registry.Issue(context.Background(), "acct-1", domain.LicenseStandard, "cus_1", "sub_1")
	require.NoError(t, err)

	rec, resp := postValidate(t, h, ValidateRequest{
		LicenseKey: license.Key,
		DeviceID:   "dev-a",
		DeviceName: "Alice's MacBook",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Valid)
	assert.Empty(t, resp.ErrorReason)
	assert.Equal(t, license.Key, resp.LicenseKey)
	assert.Equal(t, domain.LicenseStandard, resp.LicenseType)
	assert.Equal(t, 1, resp.DeviceCount)
	assert.Equal(t, 3, resp.MaxDevices)
	assert.False(t, resp.Evicted)
}

func TestValidateUnknownKeyIsSoftFailure(t *testing.T) {
	h, _ := newLicenseFixture(t)

	rec, resp := postValidate(t, h, ValidateRequest{
		LicenseKey: "KG-AAAAA-BBBBB-CCCCC-DDDDD",
		DeviceID:   "dev-a",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, resp.Valid)
	assert.Equal(t, "Invalid license key", resp.ErrorReason)
}

func TestValidateMissingFields(t *testing.T) {
	h, _ := newLicenseFixture(t)

	rec, _ := postValidate(t, h, ValidateRequest{LicenseKey: "KG-AAAAA-BBBBB-CCCCC-DDDDD"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = postValidate(t, h, ValidateRequest{DeviceID: "dev-a"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateReportsEviction(t *testing.T) {
	h, registry := newLicenseFixture(t)
	license, err := registry.Issue(context.Background(), "acct-1", domain.LicenseStandard, "cus_1", "sub_1")
	require.NoError(t, err)

	for _, id := range []string{"dev-a", "dev-b", "dev-c"} {
		rec, resp := postValidate(t, h, ValidateRequest{LicenseKey: license.Key, DeviceID: id})
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, resp.Valid)
	}

	rec, resp := postValidate(t, h, ValidateRequest{LicenseKey: license.Key, DeviceID: "dev-d"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Valid)
	assert.True(t, resp.Evicted)
	assert.Equal(t, 3, resp.DeviceCount)
}

func TestListLicensesRequiresIdentity(t *testing.T) {
	h, _ := newLicenseFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/licenses", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListLicenses(t *testing.T) {
	h, registry := newLicenseFixture(t)
	_, err := registry.Issue(context.Background(), "acct-1", domain.LicenseStandard, "cus_1", "sub_1")
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), contextkeys.AccountID, "acct-1")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/licenses", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var licenses []domain.License
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&licenses))
	assert.Len(t, licenses, 1)
	assert.Equal(t, "acct-1", licenses[0].AccountID)
}

func TestDevicesWithoutLicense(t *testing.T) {
	h, _ := newLicenseFixture(t)

	ctx := context.WithValue(context.Background(), contextkeys.AccountID, "acct-1")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Devices(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
