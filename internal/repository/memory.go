package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/keygate/backend/internal/domain"
)

// MemoryStore is an in-memory Store used by the test suite and by
// DATABASE_URL=memory development mode. Per-license mutexes give Serialize
// the same exclusion the Postgres row lock provides.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	licenses map[string]domain.License
	devices  map[string]domain.AuthorizedDevice
	events   map[string]time.Time
	history  []domain.SubscriptionHistory

	lockMu       sync.Mutex
	licenseLocks map[string]*sync.Mutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]domain.Account),
		licenses:     make(map[string]domain.License),
		devices:      make(map[string]domain.AuthorizedDevice),
		events:       make(map[string]time.Time),
		licenseLocks: make(map[string]*sync.Mutex),
	}
}

func (m *MemoryStore) Accounts() AccountStore { return (*memoryAccounts)(m) }
func (m *MemoryStore) Licenses() LicenseStore { return (*memoryLicenses)(m) }
func (m *MemoryStore) Devices() DeviceStore   { return (*memoryDevices)(m) }
func (m *MemoryStore) Events() EventStore     { return (*memoryEvents)(m) }

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
func (m *MemoryStore) Close()                         {}

// History returns a copy of the subscription-history records, oldest first.
func (m *MemoryStore) History() []domain.SubscriptionHistory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.SubscriptionHistory, len(m.history))
	copy(out, m.history)
	return out
}

func (m *MemoryStore) licenseLock(licenseID string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	l, ok := m.licenseLocks[licenseID]
	if !ok {
		l = &sync.Mutex{}
		m.licenseLocks[licenseID] = l
	}
	return l
}

type memoryAccounts MemoryStore

func (m *memoryAccounts) Create(ctx context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Email == a.Email {
			return fmt.Errorf("account %s: %w", a.Email, ErrUniqueViolation)
		}
	}
	m.accounts[a.ID] = *a
	return nil
}

func (m *memoryAccounts) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memoryAccounts) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.Email == email {
			cp := a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryAccounts) FindByBillingCustomer(ctx context.Context, customerRef string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.BillingCustomerRef == customerRef && customerRef != "" {
			cp := a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryAccounts) UpdateSubscription(ctx context.Context, accountID, customerRef, subRef, status string, periodEnd *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s not found", accountID)
	}
	a.BillingCustomerRef = customerRef
	a.BillingSubRef = subRef
	a.SubscriptionStatus = status
	a.CurrentPeriodEnd = periodEnd
	a.UpdatedAt = time.Now()
	m.accounts[accountID] = a
	return nil
}

func (m *memoryAccounts) AppendHistory(ctx context.Context, h *domain.SubscriptionHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *h)
	return nil
}

type memoryLicenses MemoryStore

func (m *memoryLicenses) Insert(ctx context.Context, l *domain.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.licenses {
		if existing.Key == l.Key {
			return fmt.Errorf("license key: %w", ErrUniqueViolation)
		}
		if existing.AccountID == l.AccountID &&
			existing.BillingSubRef == l.BillingSubRef &&
			existing.BillingSubRef != "" &&
			existing.Status == domain.LicenseStatusActive &&
			l.Status == domain.LicenseStatusActive {
			return fmt.Errorf("license for subscription %s: %w", l.BillingSubRef, ErrUniqueViolation)
		}
	}
	m.licenses[l.ID] = *l
	return nil
}

func (m *memoryLicenses) FindByKey(ctx context.Context, key string) (*domain.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.licenses {
		if l.Key == key {
			cp := l
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryLicenses) FindActiveByAccount(ctx context.Context, accountID string) (*domain.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *domain.License
	for _, l := range m.licenses {
		if l.AccountID != accountID || l.Status != domain.LicenseStatusActive {
			continue
		}
		cp := l
		if newest == nil || cp.CreatedAt.After(newest.CreatedAt) {
			newest = &cp
		}
	}
	return newest, nil
}

func (m *memoryLicenses) FindActiveBySub(ctx context.Context, accountID, subRef string) (*domain.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.licenses {
		if l.AccountID == accountID && l.BillingSubRef == subRef &&
			l.Status == domain.LicenseStatusActive {
			cp := l
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryLicenses) ListByAccount(ctx context.Context, accountID string) ([]*domain.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.License
	for _, l := range m.licenses {
		if l.AccountID == accountID {
			cp := l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryLicenses) MarkExpired(ctx context.Context, licenseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.licenses[licenseID]
	if !ok || l.Status != domain.LicenseStatusActive {
		return nil
	}
	l.Status = domain.LicenseStatusExpired
	l.UpdatedAt = time.Now()
	m.licenses[licenseID] = l
	return nil
}

type memoryDevices MemoryStore

func (m *memoryDevices) ListByLicense(ctx context.Context, licenseID string) ([]*domain.AuthorizedDevice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.AuthorizedDevice
	for _, d := range m.devices {
		if d.LicenseID == licenseID {
			cp := d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.LastValidated == nil && b.LastValidated != nil:
			return true
		case a.LastValidated != nil && b.LastValidated == nil:
			return false
		case a.LastValidated != nil && b.LastValidated != nil &&
			!a.LastValidated.Equal(*b.LastValidated):
			return a.LastValidated.Before(*b.LastValidated)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
	return out, nil
}

func (m *memoryDevices) Insert(ctx context.Context, d *domain.AuthorizedDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.devices {
		if existing.LicenseID == d.LicenseID && existing.DeviceID == d.DeviceID {
			return fmt.Errorf("device %s: %w", d.DeviceID, ErrUniqueViolation)
		}
	}
	m.devices[d.ID] = *d
	return nil
}

func (m *memoryDevices) Touch(ctx context.Context, rowID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[rowID]
	if !ok {
		return fmt.Errorf("device row %s not found", rowID)
	}
	t := at
	d.LastValidated = &t
	m.devices[rowID] = d
	return nil
}

func (m *memoryDevices) Delete(ctx context.Context, rowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, rowID)
	return nil
}

func (m *memoryDevices) Serialize(ctx context.Context, licenseID string, fn func(ctx context.Context, ops DeviceOps) error) error {
	lock := (*MemoryStore)(m).licenseLock(licenseID)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx, m)
}

func (m *memoryDevices) DeleteByDeviceID(ctx context.Context, licenseID, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.devices {
		if d.LicenseID == licenseID && d.DeviceID == deviceID {
			delete(m.devices, id)
		}
	}
	return nil
}

type memoryEvents MemoryStore

func (m *memoryEvents) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.events[eventID]
	return ok, nil
}

func (m *memoryEvents) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; !ok {
		m.events[eventID] = time.Now()
	}
	return nil
}
