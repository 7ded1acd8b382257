package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/keygate/backend/internal/domain"
)

// Minimal payload shapes decoded from event.Data.Raw. Stripe delivers
// unexpanded references as plain string IDs, so these stay version-stable
// where the SDK structs do not.

type checkoutSessionPayload struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
	Items    struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
	// Older API versions carry the period end on the subscription itself.
	CurrentPeriodEnd int64 `json:"current_period_end"`
}

func (p subscriptionPayload) priceRef() string {
	if len(p.Items.Data) > 0 {
		return p.Items.Data[0].Price.ID
	}
	return ""
}

func (p subscriptionPayload) periodEnd() *time.Time {
	sec := p.CurrentPeriodEnd
	if len(p.Items.Data) > 0 && p.Items.Data[0].CurrentPeriodEnd > 0 {
		sec = p.Items.Data[0].CurrentPeriodEnd
	}
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

type invoicePayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p invoicePayload) subscriptionRef() string {
	if p.Subscription != "" {
		return p.Subscription
	}
	return p.Parent.SubscriptionDetails.Subscription
}

// decodeEvent maps a verified Stripe event onto a domain variant. Returns
// (nil, nil) for event types the system acknowledges but does not handle.
func decodeEvent(event stripe.Event) (domain.BillingEvent, error) {
	meta := domain.EventMeta{ID: event.ID}

	switch event.Type {
	case "checkout.session.completed":
		var p checkoutSessionPayload
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		accountID := p.ClientReferenceID
		if accountID == "" {
			accountID = p.Metadata["account_id"]
		}
		return domain.CheckoutCompleted{
			EventMeta:   meta,
			AccountID:   accountID,
			CustomerRef: p.Customer,
			SubRef:      p.Subscription,
		}, nil

	case "customer.subscription.created":
		var p subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode subscription: %w", err)
		}
		return domain.SubscriptionCreated{
			EventMeta:   meta,
			CustomerRef: p.Customer,
			SubRef:      p.ID,
			Status:      p.Status,
			PriceRef:    p.priceRef(),
			PeriodEnd:   p.periodEnd(),
		}, nil

	case "customer.subscription.updated":
		var p subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode subscription: %w", err)
		}
		return domain.SubscriptionUpdated{
			EventMeta:   meta,
			CustomerRef: p.Customer,
			SubRef:      p.ID,
			Status:      p.Status,
			PeriodEnd:   p.periodEnd(),
		}, nil

	case "customer.subscription.deleted":
		var p subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode subscription: %w", err)
		}
		return domain.SubscriptionDeleted{
			EventMeta:   meta,
			CustomerRef: p.Customer,
			SubRef:      p.ID,
		}, nil

	case "invoice.payment_succeeded":
		var p invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode invoice: %w", err)
		}
		return domain.PaymentSucceeded{
			EventMeta:   meta,
			CustomerRef: p.Customer,
			SubRef:      p.subscriptionRef(),
		}, nil

	case "invoice.payment_failed":
		var p invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode invoice: %w", err)
		}
		return domain.PaymentFailed{
			EventMeta:   meta,
			CustomerRef: p.Customer,
		}, nil

	default:
		return nil, nil
	}
}
