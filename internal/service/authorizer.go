package service

import (
	"context"
	"log"
	"time"

	"github.com/keygate/backend/internal/domain"
	"github.com/keygate/backend/internal/repository"
)

// DeviceAuthorizer enforces the per-license device quota. When a new device
// arrives at capacity it evicts the least-recently-validated device rather
// than rejecting; quota breaches are resolved silently.
type DeviceAuthorizer struct {
	devices repository.DeviceStore
	now     func() time.Time
}

// NewDeviceAuthorizer creates a new DeviceAuthorizer.
func NewDeviceAuthorizer(devices repository.DeviceStore) *DeviceAuthorizer {
	return &DeviceAuthorizer{
		devices: devices,
		now:     time.Now,
	}
}

// Authorize records a validation from a device. The whole read-evict-insert
// sequence runs inside the store's per-license serialization scope so two
// concurrent calls for one license cannot both observe "under quota". The
// quota is always the license's own MaxDevices field.
func (a *DeviceAuthorizer) Authorize(ctx context.Context, license *domain.License, deviceID, deviceName string) (*domain.DeviceAuthorization, error) {
	var result domain.DeviceAuthorization

	err := a.devices.Serialize(ctx, license.ID, func(ctx context.Context, ops repository.DeviceOps) error {
		devices, err := ops.ListByLicense(ctx, license.ID)
		if err != nil {
			return err
		}
		now := a.now()

		for _, d := range devices {
			if d.DeviceID == deviceID {
				if err := ops.Touch(ctx, d.ID, now); err != nil {
					return err
				}
				result = domain.DeviceAuthorization{DeviceCount: len(devices)}
				return nil
			}
		}

		count := len(devices)
		evicted := false
		if count >= license.MaxDevices {
			oldest := devices[0]
			if err := ops.Delete(ctx, oldest.ID); err != nil {
				return err
			}
			log.Printf("evicted device %s from license %s", oldest.DeviceID, license.ID)
			count--
			evicted = true
		}

		device := &domain.AuthorizedDevice{
			ID:            domain.NewDeviceRowID(),
			LicenseID:     license.ID,
			DeviceID:      deviceID,
			DeviceName:    deviceName,
			LastValidated: &now,
			CreatedAt:     now,
		}
		if err := ops.Insert(ctx, device); err != nil {
			return err
		}

		result = domain.DeviceAuthorization{DeviceCount: count + 1, Evicted: evicted}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Deactivate removes a device from a license. Idempotent: removing a
// device that is not authorized succeeds.
func (a *DeviceAuthorizer) Deactivate(ctx context.Context, license *domain.License, deviceID string) error {
	return a.devices.DeleteByDeviceID(ctx, license.ID, deviceID)
}

// ListActive returns the license's devices, most recently validated first.
// Each call is a fresh query.
func (a *DeviceAuthorizer) ListActive(ctx context.Context, license *domain.License) ([]*domain.AuthorizedDevice, error) {
	devices, err := a.devices.ListByLicense(ctx, license.ID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(devices)-1; i < j; i, j = i+1, j-1 {
		devices[i], devices[j] = devices[j], devices[i]
	}
	return devices, nil
}
