package billing

import (
	"context"
	"fmt"
	"sync"
)

// MockGateway is a scriptable Gateway implementation for tests.
type MockGateway struct {
	mu sync.Mutex

	// Subs is the provider-side view returned by GetSubscription.
	Subs map[string]ProviderSubscription
	// Created records every checkout session requested.
	Created []CheckoutParams
	// ParseFn, when set, overrides ParseEvent.
	ParseFn func(payload []byte, signatureHeader string) (*ParsedEvent, error)
}

// NewMockGateway creates an empty MockGateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{Subs: make(map[string]ProviderSubscription)}
}

func (g *MockGateway) ParseEvent(payload []byte, signatureHeader string) (*ParsedEvent, error) {
	if g.ParseFn != nil {
		return g.ParseFn(payload, signatureHeader)
	}
	return nil, fmt.Errorf("mock gateway: ParseEvent not scripted")
}

func (g *MockGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Created = append(g.Created, p)
	id := fmt.Sprintf("cs_mock_%d", len(g.Created))
	return &CheckoutSession{ID: id, URL: "https://pay.example.com/c/" + id}, nil
}

func (g *MockGateway) GetSubscription(ctx context.Context, subRef string) (*ProviderSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sub, ok := g.Subs[subRef]
	if !ok {
		return nil, fmt.Errorf("mock gateway: unknown subscription %s", subRef)
	}
	cp := sub
	return &cp, nil
}
