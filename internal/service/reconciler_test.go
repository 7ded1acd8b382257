package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/backend/internal/domain"
	"github.com/keygate/backend/internal/repository"
	"github.com/keygate/backend/pkg/billing"
)

type reconcilerFixture struct {
	store      *repository.MemoryStore
	gateway    *billing.MockGateway
	registry   *LicenseRegistry
	reconciler *SubscriptionReconciler
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	gateway := billing.NewMockGateway()
	plans := domain.NewPlanCatalog(nil)
	registry := NewLicenseRegistry(store.Licenses(), plans)
	return &reconcilerFixture{
		store:      store,
		gateway:    gateway,
		registry:   registry,
		reconciler: NewSubscriptionReconciler(store.Accounts(), registry, gateway, plans),
	}
}

func (f *reconcilerFixture) createAccount(t *testing.T, id string) *domain.Account {
	t.Helper()
	account := &domain.Account{
		ID:                 id,
		Email:              id + "@example.com",
		SubscriptionStatus: domain.SubscriptionFree,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	require.NoError(t, f.store.Accounts().Create(context.Background(), account))
	return account
}

func (f *reconcilerFixture) account(t *testing.T, id string) *domain.Account {
	t.Helper()
	account, err := f.store.Accounts().FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, account)
	return account
}

func TestCheckoutCompletedIssuesLicenseAndActivates(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.createAccount(t, "acct-1")

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC()
	f.gateway.Subs["sub_1"] = billing.ProviderSubscription{
		Ref:         "sub_1",
		CustomerRef: "cus_1",
		Status:      "active",
		PriceRef:    "price_premium",
		PeriodEnd:   &periodEnd,
	}

	err := f.reconciler.Apply(ctx, domain.CheckoutCompleted{
		EventMeta:   domain.EventMeta{ID: "evt_1"},
		AccountID:   "acct-1",
		CustomerRef: "cus_1",
		SubRef:      "sub_1",
	})
	require.NoError(t, err)

	license, err := f.registry.ResolveActive(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LicensePremium, license.Type)
	assert.Equal(t, "sub_1", license.BillingSubRef)

	account := f.account(t, "acct-1")
	assert.Equal(t, domain.SubscriptionActive, account.SubscriptionStatus)
	assert.Equal(t, "cus_1", account.BillingCustomerRef)
	require.NotNil(t, account.CurrentPeriodEnd)
	assert.Equal(t, periodEnd, *account.CurrentPeriodEnd)

	history := f.store.History()
	require.Len(t, history, 1)
	assert.Equal(t, "checkout_completed", history[0].EventType)
}

func TestCheckoutThenSubscriptionCreatedIssuesOneLicense(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.createAccount(t, "acct-1")

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC()
	f.gateway.Subs["sub_1"] = billing.ProviderSubscription{
		Ref:       "sub_1",
		Status:    "active",
		PriceRef:  "price_standard",
		PeriodEnd: &periodEnd,
	}

	require.NoError(t, f.reconciler.Apply(ctx, domain.CheckoutCompleted{
		EventMeta:   domain.EventMeta{ID: "evt_1"},
		AccountID:   "acct-1",
		CustomerRef: "cus_1",
		SubRef:      "sub_1",
	}))
	require.NoError(t, f.reconciler.Apply(ctx, domain.SubscriptionCreated{
		EventMeta:   domain.EventMeta{ID: "evt_2"},
		CustomerRef: "cus_1",
		SubRef:      "sub_1",
		Status:      "active",
		PriceRef:    "price_standard",
		PeriodEnd:   &periodEnd,
	}))

	licenses, err := f.registry.ListByAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, licenses, 1)
}

func TestSubscriptionCreatedMapsUnknownStatusToCanceled(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.createAccount(t, "acct-1")
	require.NoError(t, f.store.Accounts().UpdateSubscription(ctx, "acct-1", "cus_1", "", domain.SubscriptionFree, nil))

	require.NoError(t, f.reconciler.Apply(ctx, domain.SubscriptionCreated{
		EventMeta:   domain.EventMeta{ID: "evt_1"},
		CustomerRef: "cus_1",
		SubRef:      "sub_1",
		Status:      "incomplete_expired",
		PriceRef:    "price_standard",
	}))

	account := f.account(t, "acct-1")
	assert.Equal(t, domain.SubscriptionCanceled, account.SubscriptionStatus)
}

func TestSubscriptionUpdatedRefreshesStatusWithoutNewLicense(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.createAccount(t, "acct-1")
	require.NoError(t, f.store.Accounts().UpdateSubscription(ctx, "acct-1", "cus_1", "sub_1", domain.SubscriptionActive, nil))
	_, err := f.registry.Issue(ctx, "acct-1", domain.LicenseStandard, "cus_1", "sub_1")
	require.NoError(t, err)

	newEnd := time.Now().Add(60 * 24 * time.Hour).UTC()
	require.NoError(t, f.reconciler.Apply(ctx, domain.SubscriptionUpdated{
		EventMeta:   domain.EventMeta{ID: "evt_1"},
		CustomerRef: "cus_1",
		SubRef:      "sub_1",
		Status:      "past_due",
		PeriodEnd:   &newEnd,
	}))

	account := f.account(t, "acct-1")
	assert.Equal(t, domain.SubscriptionPastDue, account.SubscriptionStatus)
	require.NotNil(t, account.CurrentPeriodEnd)
	assert.Equal(t, newEnd, *account.CurrentPeriodEnd)

	licenses, err := f.registry.ListByAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, licenses, 1)
}

func TestSubscriptionDeletedCancelsAccountButKeepsLicense(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.createAccount(t, "acct-1")
	require.NoError(t, f.store.Accounts().UpdateSubscription(ctx, "acct-1", "cus_1", "sub_1", domain.SubscriptionActive, nil))
	issued, err := f.registry.Issue(ctx, "acct-1", domain.LicenseStandard, "cus_1", "sub_1")
	require.NoError(t, err)

	require.NoError(t, f.reconciler.Apply(ctx, domain.SubscriptionDeleted{
		EventMeta:   domain.EventMeta{ID: "evt_1"},
		CustomerRef: "cus_1",
		SubRef:      "sub_1",
	}))

	account := f.account(t, "acct-1")
	assert.Equal(t, domain.SubscriptionCanceled, account.SubscriptionStatus)
	assert.Nil(t, account.CurrentPeriodEnd)

	// The license rides out its paid-through period untouched.
	license, err := f.registry.ResolveActive(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, issued.ID, license.ID)
	assert.Equal(t, domain.LicenseStatusActive, license.Status)
}

func TestPaymentSucceededIssuesMissingLicense(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.createAccount(t, "acct-1")
	require.NoError(t, f.store.Accounts().UpdateSubscription(ctx, "acct-1", "cus_1", "sub_1", domain.SubscriptionPastDue, nil))

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC()
	f.gateway.Subs["sub_1"] = billing.ProviderSubscription{
		Ref:       "sub_1",
		Status:    "active",
		PriceRef:  "price_enterprise",
		PeriodEnd: &periodEnd,
	}

	require.NoError(t, f.reconciler.Apply(ctx, domain.PaymentSucceeded{
		EventMeta:   domain.EventMeta{ID: "evt_1"},
		CustomerRef: "cus_1",
		SubRef:      "sub_1",
	}))

	license, err := f.registry.ResolveActive(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LicenseEnterprise, license.Type)

	account := f.account(t, "acct-1")
	assert.Equal(t, domain.SubscriptionActive, account.SubscriptionStatus)
}

func TestPaymentFailedMarksPastDueAndKeepsLicense(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.createAccount(t, "acct-1")
	require.NoError(t, f.store.Accounts().UpdateSubscription(ctx, "acct-1", "cus_1", "sub_1", domain.SubscriptionActive, nil))
	_, err := f.registry.Issue(ctx, "acct-1", domain.LicenseStandard, "cus_1", "sub_1")
	require.NoError(t, err)

	require.NoError(t, f.reconciler.Apply(ctx, domain.PaymentFailed{
		EventMeta:   domain.EventMeta{ID: "evt_1"},
		CustomerRef: "cus_1",
	}))

	account := f.account(t, "acct-1")
	assert.Equal(t, domain.SubscriptionPastDue, account.SubscriptionStatus)
	assert.Equal(t, "sub_1", account.BillingSubRef)

	license, err := f.registry.ResolveActive(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LicenseStatusActive, license.Status)
}

func TestApplyFailsForUnknownBillingCustomer(t *testing.T) {
	f := newReconcilerFixture(t)

	err := f.reconciler.Apply(context.Background(), domain.PaymentFailed{
		EventMeta:   domain.EventMeta{ID: "evt_1"},
		CustomerRef: "cus_ghost",
	})
	assert.Error(t, err)
}

func TestApplyReplaySafe(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.createAccount(t, "acct-1")

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC()
	f.gateway.Subs["sub_1"] = billing.ProviderSubscription{
		Ref:       "sub_1",
		Status:    "active",
		PriceRef:  "price_standard",
		PeriodEnd: &periodEnd,
	}

	ev := domain.CheckoutCompleted{
		EventMeta:   domain.EventMeta{ID: "evt_1"},
		AccountID:   "acct-1",
		CustomerRef: "cus_1",
		SubRef:      "sub_1",
	}
	require.NoError(t, f.reconciler.Apply(ctx, ev))
	require.NoError(t, f.reconciler.Apply(ctx, ev))

	licenses, err := f.registry.ListByAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, licenses, 1)
}
