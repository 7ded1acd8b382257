package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/keygate/backend/internal/domain"
)

func makeEvent(t *testing.T, eventType, object string) stripe.Event {
	t.Helper()
	return stripe.Event{
		ID:   "evt_1",
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(object)},
	}
}

func TestDecodeCheckoutSessionCompleted(t *testing.T) {
	ev := makeEvent(t, "checkout.session.completed",
		`{"id":"cs_1","client_reference_id":"acct-1","customer":"cus_1","subscription":"sub_1"}`)

	decoded, err := decodeEvent(ev)
	require.NoError(t, err)

	checkout, ok := decoded.(domain.CheckoutCompleted)
	require.True(t, ok)
	assert.Equal(t, "evt_1", checkout.EventID())
	assert.Equal(t, "acct-1", checkout.AccountID)
	assert.Equal(t, "cus_1", checkout.CustomerRef)
	assert.Equal(t, "sub_1", checkout.SubRef)
}

func TestDecodeCheckoutFallsBackToMetadata(t *testing.T) {
	ev := makeEvent(t, "checkout.session.completed",
		`{"id":"cs_1","customer":"cus_1","subscription":"sub_1","metadata":{"account_id":"acct-2"}}`)

	decoded, err := decodeEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, "acct-2", decoded.(domain.CheckoutCompleted).AccountID)
}

func TestDecodeSubscriptionPeriodEndFromItems(t *testing.T) {
	end := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	ev := makeEvent(t, "customer.subscription.created",
		`{"id":"sub_1","customer":"cus_1","status":"active","items":{"data":[{"price":{"id":"price_x"},"current_period_end":1790812800}]}}`)

	decoded, err := decodeEvent(ev)
	require.NoError(t, err)

	created, ok := decoded.(domain.SubscriptionCreated)
	require.True(t, ok)
	assert.Equal(t, "price_x", created.PriceRef)
	require.NotNil(t, created.PeriodEnd)
	assert.Equal(t, end, *created.PeriodEnd)
}

func TestDecodeSubscriptionPeriodEndTopLevel(t *testing.T) {
	// Older API versions carry current_period_end on the subscription.
	ev := makeEvent(t, "customer.subscription.updated",
		`{"id":"sub_1","customer":"cus_1","status":"past_due","current_period_end":1790812800}`)

	decoded, err := decodeEvent(ev)
	require.NoError(t, err)

	updated, ok := decoded.(domain.SubscriptionUpdated)
	require.True(t, ok)
	assert.Equal(t, "past_due", updated.Status)
	require.NotNil(t, updated.PeriodEnd)
	assert.Equal(t, int64(1790812800), updated.PeriodEnd.Unix())
}

func TestDecodeSubscriptionDeleted(t *testing.T) {
	ev := makeEvent(t, "customer.subscription.deleted", `{"id":"sub_1","customer":"cus_1","status":"canceled"}`)

	decoded, err := decodeEvent(ev)
	require.NoError(t, err)

	deleted, ok := decoded.(domain.SubscriptionDeleted)
	require.True(t, ok)
	assert.Equal(t, "sub_1", deleted.SubRef)
}

func TestDecodeInvoiceSubscriptionRef(t *testing.T) {
	// Top-level subscription field.
	ev := makeEvent(t, "invoice.payment_succeeded", `{"id":"in_1","customer":"cus_1","subscription":"sub_1"}`)
	decoded, err := decodeEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, "sub_1", decoded.(domain.PaymentSucceeded).SubRef)

	// Newer payloads nest it under parent.subscription_details.
	ev = makeEvent(t, "invoice.payment_succeeded",
		`{"id":"in_1","customer":"cus_1","parent":{"subscription_details":{"subscription":"sub_2"}}}`)
	decoded, err = decodeEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, "sub_2", decoded.(domain.PaymentSucceeded).SubRef)
}

func TestDecodePaymentFailed(t *testing.T) {
	ev := makeEvent(t, "invoice.payment_failed", `{"id":"in_1","customer":"cus_1"}`)

	decoded, err := decodeEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", decoded.(domain.PaymentFailed).CustomerRef)
}

func TestDecodeUnhandledTypeReturnsNil(t *testing.T) {
	ev := makeEvent(t, "customer.created", `{"id":"cus_1"}`)

	decoded, err := decodeEvent(ev)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeMalformedPayload(t *testing.T) {
	ev := makeEvent(t, "customer.subscription.created", `{"id":`)

	_, err := decodeEvent(ev)
	assert.Error(t, err)
}
