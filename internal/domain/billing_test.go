package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"active", SubscriptionActive},
		{"past_due", SubscriptionPastDue},
		{"canceled", SubscriptionCanceled},
		// Everything unrecognized denies access rather than granting it.
		{"trialing", SubscriptionCanceled},
		{"incomplete", SubscriptionCanceled},
		{"incomplete_expired", SubscriptionCanceled},
		{"unpaid", SubscriptionCanceled},
		{"paused", SubscriptionCanceled},
		{"", SubscriptionCanceled},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapProviderStatus(tt.provider), "provider status %q", tt.provider)
	}
}
