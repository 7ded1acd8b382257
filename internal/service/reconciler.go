package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/keygate/backend/internal/domain"
	"github.com/keygate/backend/internal/repository"
	"github.com/keygate/backend/pkg/billing"
)

// SubscriptionReconciler maps billing events onto account and license
// state. It is stateless and driven one event at a time by the webhook
// processor; every effect is idempotent so the same event can be applied
// again after a partial failure.
type SubscriptionReconciler struct {
	accounts repository.AccountStore
	registry *LicenseRegistry
	gateway  billing.Gateway
	plans    domain.PlanCatalog
	now      func() time.Time
}

// NewSubscriptionReconciler creates a new SubscriptionReconciler.
func NewSubscriptionReconciler(accounts repository.AccountStore, registry *LicenseRegistry, gateway billing.Gateway, plans domain.PlanCatalog) *SubscriptionReconciler {
	return &SubscriptionReconciler{
		accounts: accounts,
		registry: registry,
		gateway:  gateway,
		plans:    plans,
		now:      time.Now,
	}
}

// Apply dispatches one decoded billing event.
func (r *SubscriptionReconciler) Apply(ctx context.Context, event domain.BillingEvent) error {
	switch ev := event.(type) {
	case domain.CheckoutCompleted:
		return r.checkoutCompleted(ctx, ev)
	case domain.SubscriptionCreated:
		return r.subscriptionCreated(ctx, ev)
	case domain.SubscriptionUpdated:
		return r.subscriptionUpdated(ctx, ev)
	case domain.SubscriptionDeleted:
		return r.subscriptionDeleted(ctx, ev)
	case domain.PaymentSucceeded:
		return r.paymentSucceeded(ctx, ev)
	case domain.PaymentFailed:
		return r.paymentFailed(ctx, ev)
	default:
		log.Printf("ignoring billing event %s: unhandled variant %T", event.EventID(), event)
		return nil
	}
}

// checkoutCompleted issues the license for a fresh purchase and activates
// the account.
func (r *SubscriptionReconciler) checkoutCompleted(ctx context.Context, ev domain.CheckoutCompleted) error {
	account, err := r.resolveCheckoutAccount(ctx, ev)
	if err != nil {
		return err
	}

	sub, err := r.gateway.GetSubscription(ctx, ev.SubRef)
	if err != nil {
		return fmt.Errorf("checkout %s: %w", ev.EventID(), err)
	}

	licenseType := r.plans.TypeForPrice(sub.PriceRef)
	license, err := r.registry.Issue(ctx, account.ID, licenseType, ev.CustomerRef, ev.SubRef)
	if err != nil {
		return fmt.Errorf("checkout %s: %w", ev.EventID(), err)
	}

	if err := r.accounts.UpdateSubscription(ctx, account.ID, ev.CustomerRef, ev.SubRef, domain.SubscriptionActive, sub.PeriodEnd); err != nil {
		return err
	}
	if err := r.appendHistory(ctx, account.ID, ev.SubRef, "checkout_completed", domain.SubscriptionActive, sub.PeriodEnd); err != nil {
		return err
	}

	log.Printf("checkout completed: account %s license %s (%s)", account.ID, license.ID, licenseType)
	return nil
}

// subscriptionCreated issues a license unless checkoutCompleted already did
// for the same subscription, then applies the mapped status.
func (r *SubscriptionReconciler) subscriptionCreated(ctx context.Context, ev domain.SubscriptionCreated) error {
	account, err := r.requireAccountByCustomer(ctx, ev.CustomerRef, ev.EventID())
	if err != nil {
		return err
	}

	licenseType := r.plans.TypeForPrice(ev.PriceRef)
	if _, err := r.registry.Issue(ctx, account.ID, licenseType, ev.CustomerRef, ev.SubRef); err != nil {
		return fmt.Errorf("subscription created %s: %w", ev.EventID(), err)
	}

	status := domain.MapProviderStatus(ev.Status)
	return r.accounts.UpdateSubscription(ctx, account.ID, ev.CustomerRef, ev.SubRef, status, ev.PeriodEnd)
}

// subscriptionUpdated refreshes status and period end. It never re-issues
// a license.
func (r *SubscriptionReconciler) subscriptionUpdated(ctx context.Context, ev domain.SubscriptionUpdated) error {
	account, err := r.requireAccountByCustomer(ctx, ev.CustomerRef, ev.EventID())
	if err != nil {
		return err
	}

	status := domain.MapProviderStatus(ev.Status)
	if err := r.accounts.UpdateSubscription(ctx, account.ID, ev.CustomerRef, ev.SubRef, status, ev.PeriodEnd); err != nil {
		return err
	}
	return r.appendHistory(ctx, account.ID, ev.SubRef, "subscription_updated", status, ev.PeriodEnd)
}

// subscriptionDeleted cancels the account's subscription. The license is
// left to expire naturally: cancellation stops renewal but honors the
// paid-through period.
func (r *SubscriptionReconciler) subscriptionDeleted(ctx context.Context, ev domain.SubscriptionDeleted) error {
	account, err := r.requireAccountByCustomer(ctx, ev.CustomerRef, ev.EventID())
	if err != nil {
		return err
	}

	if err := r.accounts.UpdateSubscription(ctx, account.ID, ev.CustomerRef, ev.SubRef, domain.SubscriptionCanceled, nil); err != nil {
		return err
	}
	return r.appendHistory(ctx, account.ID, ev.SubRef, "subscription_deleted", domain.SubscriptionCanceled, nil)
}

// paymentSucceeded reactivates the account and covers the delayed-checkout
// case where the first payment lands before any license exists.
func (r *SubscriptionReconciler) paymentSucceeded(ctx context.Context, ev domain.PaymentSucceeded) error {
	account, err := r.requireAccountByCustomer(ctx, ev.CustomerRef, ev.EventID())
	if err != nil {
		return err
	}

	periodEnd := account.CurrentPeriodEnd
	subRef := ev.SubRef
	if subRef == "" {
		subRef = account.BillingSubRef
	}

	if subRef != "" {
		sub, err := r.gateway.GetSubscription(ctx, subRef)
		if err != nil {
			return fmt.Errorf("payment succeeded %s: %w", ev.EventID(), err)
		}
		periodEnd = sub.PeriodEnd

		licenseType := r.plans.TypeForPrice(sub.PriceRef)
		if _, err := r.registry.Issue(ctx, account.ID, licenseType, ev.CustomerRef, subRef); err != nil {
			return fmt.Errorf("payment succeeded %s: %w", ev.EventID(), err)
		}
	}

	return r.accounts.UpdateSubscription(ctx, account.ID, ev.CustomerRef, subRef, domain.SubscriptionActive, periodEnd)
}

// paymentFailed marks the account past due. Licenses are untouched;
// reduced access on past_due is the caller's concern.
func (r *SubscriptionReconciler) paymentFailed(ctx context.Context, ev domain.PaymentFailed) error {
	account, err := r.requireAccountByCustomer(ctx, ev.CustomerRef, ev.EventID())
	if err != nil {
		return err
	}
	return r.accounts.UpdateSubscription(ctx, account.ID, ev.CustomerRef, account.BillingSubRef, domain.SubscriptionPastDue, account.CurrentPeriodEnd)
}

// resolveCheckoutAccount prefers the account reference we planted in the
// checkout session, falling back to the billing customer ref for sessions
// created out of band.
func (r *SubscriptionReconciler) resolveCheckoutAccount(ctx context.Context, ev domain.CheckoutCompleted) (*domain.Account, error) {
	if ev.AccountID != "" {
		account, err := r.accounts.FindByID(ctx, ev.AccountID)
		if err != nil {
			return nil, err
		}
		if account != nil {
			return account, nil
		}
	}
	return r.requireAccountByCustomer(ctx, ev.CustomerRef, ev.EventID())
}

func (r *SubscriptionReconciler) requireAccountByCustomer(ctx context.Context, customerRef, eventID string) (*domain.Account, error) {
	account, err := r.accounts.FindByBillingCustomer(ctx, customerRef)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("event %s: no account for billing customer %s", eventID, customerRef)
	}
	return account, nil
}

func (r *SubscriptionReconciler) appendHistory(ctx context.Context, accountID, subRef, eventType, status string, periodEnd *time.Time) error {
	return r.accounts.AppendHistory(ctx, &domain.SubscriptionHistory{
		ID:         domain.NewAccountID(),
		AccountID:  accountID,
		SubRef:     subRef,
		EventType:  eventType,
		Status:     status,
		PeriodEnd:  periodEnd,
		RecordedAt: r.now(),
	})
}
