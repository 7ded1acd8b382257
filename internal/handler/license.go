package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keygate/backend/internal/contextkeys"
	"github.com/keygate/backend/internal/domain"
	"github.com/keygate/backend/internal/service"
)

// LicenseHandler handles license validation and device management.
type LicenseHandler struct {
	registry   *service.LicenseRegistry
	authorizer *service.DeviceAuthorizer
}

// NewLicenseHandler creates a new LicenseHandler.
func NewLicenseHandler(registry *service.LicenseRegistry, authorizer *service.DeviceAuthorizer) *LicenseHandler {
	return &LicenseHandler{registry: registry, authorizer: authorizer}
}

// ValidateRequest is the body of a license validation call from the
// desktop app. DeviceID is opaque, caller-supplied, and stable per device.
type ValidateRequest struct {
	LicenseKey string `json:"licenseKey"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

// ValidateResponse reports the outcome of a validation.
type ValidateResponse struct {
	Valid       bool       `json:"valid"`
	ErrorReason string     `json:"errorReason,omitempty"`
	LicenseKey  string     `json:"licenseKey,omitempty"`
	LicenseType string     `json:"licenseType,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	DeviceCount int        `json:"deviceCount,omitempty"`
	MaxDevices  int        `json:"maxDevices,omitempty"`
	Evicted     bool       `json:"evicted,omitempty"`
}

// Validate handles POST /api/v1/licenses/validate. License failures are
// 200 responses with valid=false and a stable errorReason; only malformed
// requests and store failures use error status codes.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if req.LicenseKey == "" || req.DeviceID == "" {
		Error(w, domain.ErrBadRequest("licenseKey and deviceId are required"))
		return
	}

	license, err := h.registry.ValidateKey(r.Context(), req.LicenseKey)
	if err != nil {
		h.respondInvalid(w, err)
		return
	}

	auth, err := h.authorizer.Authorize(r.Context(), license, req.DeviceID, req.DeviceName)
	if err != nil {
		h.respondInvalid(w, err)
		return
	}

	JSON(w, http.StatusOK, ValidateResponse{
		Valid:       true,
		LicenseKey:  license.Key,
		LicenseType: license.Type,
		ExpiresAt:   &license.ExpiresAt,
		DeviceCount: auth.DeviceCount,
		MaxDevices:  license.MaxDevices,
		Evicted:     auth.Evicted,
	})
}

func (h *LicenseHandler) respondInvalid(w http.ResponseWriter, err error) {
	if reason := domain.ErrorReason(err); reason != "" {
		JSON(w, http.StatusOK, ValidateResponse{Valid: false, ErrorReason: reason})
		return
	}
	Error(w, err)
}

// List handles GET /api/v1/licenses.
func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value(contextkeys.AccountID).(string)
	if !ok || accountID == "" {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	licenses, err := h.registry.ListByAccount(r.Context(), accountID)
	if err != nil {
		Error(w, err)
		return
	}
	if licenses == nil {
		licenses = []*domain.License{}
	}
	JSON(w, http.StatusOK, licenses)
}

// Devices handles GET /api/v1/devices: the active devices on the caller's
// current license, most recently validated first.
func (h *LicenseHandler) Devices(w http.ResponseWriter, r *http.Request) {
	license, ok := h.currentLicense(w, r)
	if !ok {
		return
	}

	devices, err := h.authorizer.ListActive(r.Context(), license)
	if err != nil {
		Error(w, err)
		return
	}
	if devices == nil {
		devices = []*domain.AuthorizedDevice{}
	}
	JSON(w, http.StatusOK, devices)
}

// DeactivateDevice handles DELETE /api/v1/devices/{deviceID}. Idempotent.
func (h *LicenseHandler) DeactivateDevice(w http.ResponseWriter, r *http.Request) {
	license, ok := h.currentLicense(w, r)
	if !ok {
		return
	}

	deviceID := chi.URLParam(r, "deviceID")
	if deviceID == "" {
		Error(w, domain.ErrBadRequest("deviceID is required"))
		return
	}

	if err := h.authorizer.Deactivate(r.Context(), license, deviceID); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *LicenseHandler) currentLicense(w http.ResponseWriter, r *http.Request) (*domain.License, bool) {
	accountID, ok := r.Context().Value(contextkeys.AccountID).(string)
	if !ok || accountID == "" {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return nil, false
	}

	license, err := h.registry.ResolveActive(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveLicense) || errors.Is(err, domain.ErrLicenseExpired) {
			Error(w, domain.ErrNotFound("no active license"))
			return nil, false
		}
		Error(w, err)
		return nil, false
	}
	return license, true
}
