package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/keygate/backend/internal/contextkeys"
	"github.com/keygate/backend/internal/domain"
	"github.com/keygate/backend/internal/service"
	"github.com/keygate/backend/pkg/billing"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = int64(65536)

// BillingHandler handles checkout creation and webhook ingestion.
type BillingHandler struct {
	processor  *service.WebhookProcessor
	accountSvc *service.AccountService
	gateway    billing.Gateway
	plans      domain.PlanCatalog
	successURL string
	cancelURL  string
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(processor *service.WebhookProcessor, accountSvc *service.AccountService, gateway billing.Gateway, plans domain.PlanCatalog, successURL, cancelURL string) *BillingHandler {
	return &BillingHandler{
		processor:  processor,
		accountSvc: accountSvc,
		gateway:    gateway,
		plans:      plans,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// CheckoutRequest is the input for creating a hosted payment session.
type CheckoutRequest struct {
	Plan string `json:"plan"`
}

// CreateCheckout handles POST /api/v1/billing/checkout.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value(contextkeys.AccountID).(string)
	if !ok || accountID == "" {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req CheckoutRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	plan, found := h.plans.ByType(req.Plan)
	if !found || plan.PriceRef == "" {
		Error(w, domain.ErrBadRequest("invalid or free plan"))
		return
	}

	account, err := h.accountSvc.GetAccount(r.Context(), accountID)
	if err != nil {
		Error(w, err)
		return
	}

	sess, err := h.gateway.CreateCheckoutSession(r.Context(), billing.CheckoutParams{
		AccountID:     account.ID,
		CustomerEmail: account.Email,
		PriceRef:      plan.PriceRef,
		SuccessURL:    h.successURL,
		CancelURL:     h.cancelURL,
	})
	if err != nil {
		Error(w, domain.ErrInternal("failed to create checkout session", err))
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"checkoutUrl": sess.URL,
		"sessionId":   sess.ID,
	})
}

// Webhook handles POST /api/v1/billing/webhook. The body is passed to
// verification as the exact raw bytes received; any re-encoding would
// invalidate the signature. A 2xx is written only after the event is
// durably recorded as processed, so every other status is safe to retry.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		Error(w, domain.ErrBadRequest("failed to read webhook payload"))
		return
	}

	err = h.processor.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		JSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, domain.ErrBadSignature):
		Error(w, domain.ErrBadRequest("invalid webhook signature"))
	default:
		Error(w, domain.ErrInternal("failed to process webhook", err))
	}
}
