package domain

import "time"

// BillingEvent is a decoded billing-provider notification. Each variant
// carries only the fields its handler needs; payloads are decoded once at
// the webhook boundary and never re-parsed downstream.
type BillingEvent interface {
	// EventID returns the provider's unique event identifier, used for
	// at-most-once processing.
	EventID() string
}

// EventMeta is embedded by every event variant.
type EventMeta struct {
	ID string
}

func (m EventMeta) EventID() string { return m.ID }

// CheckoutCompleted fires when the hosted payment page completes. It is the
// primary trigger for license issuance.
type CheckoutCompleted struct {
	EventMeta
	AccountID   string
	CustomerRef string
	SubRef      string
}

// SubscriptionCreated fires when the provider creates the subscription,
// possibly before or after CheckoutCompleted for the same subscription.
type SubscriptionCreated struct {
	EventMeta
	CustomerRef string
	SubRef      string
	Status      string
	PriceRef    string
	PeriodEnd   *time.Time
}

// SubscriptionUpdated fires on renewals and plan/status changes.
type SubscriptionUpdated struct {
	EventMeta
	CustomerRef string
	SubRef      string
	Status      string
	PeriodEnd   *time.Time
}

// SubscriptionDeleted fires when the subscription is canceled at the
// provider. Cancellation stops renewal but honors the paid-through period,
// so the license is left to expire naturally.
type SubscriptionDeleted struct {
	EventMeta
	CustomerRef string
	SubRef      string
}

// PaymentSucceeded fires on each successful invoice payment.
type PaymentSucceeded struct {
	EventMeta
	CustomerRef string
	SubRef      string
}

// PaymentFailed fires when an invoice payment attempt fails.
type PaymentFailed struct {
	EventMeta
	CustomerRef string
}

// MapProviderStatus maps a provider subscription status onto the account
// subscription status. Unrecognized states map to canceled: deny by default.
func MapProviderStatus(providerStatus string) string {
	switch providerStatus {
	case "active":
		return SubscriptionActive
	case "past_due":
		return SubscriptionPastDue
	case "canceled":
		return SubscriptionCanceled
	default:
		return SubscriptionCanceled
	}
}
