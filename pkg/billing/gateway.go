package billing

import (
	"context"
	"time"

	"github.com/keygate/backend/internal/domain"
)

// Gateway is the interface to the external subscription provider. The
// service layer never talks to the provider SDK directly.
type Gateway interface {
	// ParseEvent verifies the webhook signature against the raw payload
	// and decodes the event. Returns domain.ErrBadSignature when the
	// signature does not match. ParsedEvent.Event is nil for event types
	// the system does not handle.
	ParseEvent(payload []byte, signatureHeader string) (*ParsedEvent, error)

	// CreateCheckoutSession creates a hosted payment session and returns
	// its redirect URL.
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)

	// GetSubscription fetches the provider's view of a subscription.
	GetSubscription(ctx context.Context, subRef string) (*ProviderSubscription, error)
}

// ParsedEvent is a verified, decoded webhook delivery.
type ParsedEvent struct {
	ID    string
	Type  string
	Event domain.BillingEvent
}

// CheckoutParams describes the session to create.
type CheckoutParams struct {
	AccountID     string
	CustomerEmail string
	PriceRef      string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the created hosted payment session.
type CheckoutSession struct {
	ID  string
	URL string
}

// ProviderSubscription is the provider's view of a subscription.
type ProviderSubscription struct {
	Ref         string
	CustomerRef string
	Status      string
	PriceRef    string
	PeriodEnd   *time.Time
}
