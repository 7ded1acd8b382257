package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/keygate/backend/internal/domain"
)

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	webhookSecret string
}

// NewStripeGateway configures the Stripe client and returns a gateway.
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{webhookSecret: webhookSecret}
}

// ParseEvent verifies the Stripe-Signature header over the exact raw body
// and decodes the event into a domain variant.
func (g *StripeGateway) ParseEvent(payload []byte, signatureHeader string) (*ParsedEvent, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("webhook secret not configured: %w", domain.ErrBadSignature)
	}
	event, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadSignature)
	}

	decoded, err := decodeEvent(event)
	if err != nil {
		return nil, err
	}
	return &ParsedEvent{ID: event.ID, Type: string(event.Type), Event: decoded}, nil
}

// CreateCheckoutSession creates a hosted subscription checkout page.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(p.AccountID),
		CustomerEmail:     stripe.String(p.CustomerEmail),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceRef),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.AddMetadata("account_id", p.AccountID)
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// GetSubscription fetches a subscription from Stripe.
func (g *StripeGateway) GetSubscription(ctx context.Context, subRef string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(subRef, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscription %s: %w", subRef, err)
	}

	ps := &ProviderSubscription{
		Ref:    sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		ps.CustomerRef = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			ps.PriceRef = item.Price.ID
		}
		if item.CurrentPeriodEnd > 0 {
			t := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			ps.PeriodEnd = &t
		}
	}
	return ps, nil
}
