package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subscription status values tracked on an account. Mutated only by the
// reconciler when billing events arrive.
const (
	SubscriptionFree     = "free"
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// Account represents a registered user of the desktop app.
type Account struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Password           string     `json:"-"`
	SubscriptionStatus string     `json:"subscriptionStatus"`
	BillingCustomerRef string     `json:"-"`
	BillingSubRef      string     `json:"-"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// NewAccountID generates a new unique account ID.
func NewAccountID() string {
	return uuid.New().String()
}

// SignupRequest is the input for creating an account.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest is the input for authenticating an account.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the bearer token and basic account info.
type LoginResponse struct {
	Token   string       `json:"token"`
	Account AccountBrief `json:"account"`
}

// AccountBrief is the subset of account fields exposed after login.
type AccountBrief struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// JWTClaims holds the verified identity extracted from a bearer token.
type JWTClaims struct {
	Sub   string
	Email string
}

// SubscriptionHistory is an append-only audit record of subscription
// state changes applied by the reconciler.
type SubscriptionHistory struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"accountId"`
	SubRef     string     `json:"subscriptionRef"`
	EventType  string     `json:"eventType"`
	Status     string     `json:"status"`
	PeriodEnd  *time.Time `json:"periodEnd,omitempty"`
	RecordedAt time.Time  `json:"recordedAt"`
}
