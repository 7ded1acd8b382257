package service

import (
	"context"
	"fmt"
	"log"

	"github.com/keygate/backend/internal/repository"
	"github.com/keygate/backend/pkg/billing"
)

// WebhookProcessor turns the provider's at-least-once webhook delivery into
// at-most-once semantic effect: signature verification, event-id dedup
// backed by a unique constraint, then dispatch to the reconciler.
type WebhookProcessor struct {
	events     repository.EventStore
	reconciler *SubscriptionReconciler
	gateway    billing.Gateway
}

// NewWebhookProcessor creates a new WebhookProcessor.
func NewWebhookProcessor(events repository.EventStore, reconciler *SubscriptionReconciler, gateway billing.Gateway) *WebhookProcessor {
	return &WebhookProcessor{
		events:     events,
		reconciler: reconciler,
		gateway:    gateway,
	}
}

// Handle processes one raw webhook delivery. A nil return means the caller
// may acknowledge: the event's effect is applied (or it was a replay or an
// unhandled type) and its ID is durably recorded. Any error return is safe
// for the provider to retry because the event ID is recorded only after a
// successful dispatch and every reconciler effect is idempotent.
func (p *WebhookProcessor) Handle(ctx context.Context, payload []byte, signatureHeader string) error {
	parsed, err := p.gateway.ParseEvent(payload, signatureHeader)
	if err != nil {
		return err
	}

	processed, err := p.events.IsProcessed(ctx, parsed.ID)
	if err != nil {
		return fmt.Errorf("event %s: %w", parsed.ID, err)
	}
	if processed {
		log.Printf("replayed billing event %s (%s), already applied", parsed.ID, parsed.Type)
		return nil
	}

	if parsed.Event == nil {
		log.Printf("acknowledging unhandled billing event type %s (%s)", parsed.Type, parsed.ID)
	} else if err := p.reconciler.Apply(ctx, parsed.Event); err != nil {
		return fmt.Errorf("dispatch of event %s (%s) failed: %w", parsed.ID, parsed.Type, err)
	}

	if err := p.events.MarkProcessed(ctx, parsed.ID, parsed.Type); err != nil {
		return fmt.Errorf("event %s applied but not recorded: %w", parsed.ID, err)
	}
	return nil
}
