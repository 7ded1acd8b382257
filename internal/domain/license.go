package domain

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
	"time"

	"github.com/google/uuid"
)

// License types, in ascending order of entitlement.
const (
	LicenseTrial      = "trial"
	LicenseStandard   = "standard"
	LicensePremium    = "premium"
	LicenseEnterprise = "enterprise"
)

// License status values. A license is never deleted; a renewal that changes
// billing identifiers supersedes it with a new one.
const (
	LicenseStatusInactive = "inactive"
	LicenseStatusActive   = "active"
	LicenseStatusExpired  = "expired"
	LicenseStatusRevoked  = "revoked"
)

// License grants use of the desktop app to one account, bounded by a
// device quota and an expiry.
type License struct {
	ID                 string    `json:"id"`
	AccountID          string    `json:"accountId"`
	Key                string    `json:"key"`
	Type               string    `json:"type"`
	Status             string    `json:"status"`
	MaxDevices         int       `json:"maxDevices"`
	ExpiresAt          time.Time `json:"expiresAt"`
	BillingCustomerRef string    `json:"-"`
	BillingSubRef      string    `json:"-"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Expired reports whether the license's expiry has passed at t.
func (l *License) Expired(t time.Time) bool {
	return t.After(l.ExpiresAt)
}

// NewLicenseID generates a new unique license ID.
func NewLicenseID() string {
	return uuid.New().String()
}

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewLicenseKey generates an unguessable license key of the form
// KG-XXXXX-XXXXX-XXXXX-XXXXX (100 bits of randomness, base32).
func NewLicenseKey() string {
	buf := make([]byte, 13)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	raw := keyEncoding.EncodeToString(buf)[:20]
	var b strings.Builder
	b.WriteString("KG")
	for i := 0; i < 20; i += 5 {
		b.WriteByte('-')
		b.WriteString(raw[i : i+5])
	}
	return b.String()
}

// AuthorizedDevice is a machine permitted to use a license. The pair
// (license, device identifier) is unique; re-validation refreshes
// LastValidated instead of creating a new row.
type AuthorizedDevice struct {
	ID            string     `json:"id"`
	LicenseID     string     `json:"licenseId"`
	DeviceID      string     `json:"deviceId"`
	DeviceName    string     `json:"deviceName"`
	LastValidated *time.Time `json:"lastValidated,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// NewDeviceRowID generates a new unique device row ID.
func NewDeviceRowID() string {
	return uuid.New().String()
}

// DeviceAuthorization is the outcome of a device authorization attempt.
type DeviceAuthorization struct {
	DeviceCount int  `json:"deviceCount"`
	Evicted     bool `json:"evicted"`
}
