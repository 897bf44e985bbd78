// Package payment abstracts the hosted checkout provider.  The booking
// flow only needs three things from it: start a checkout, ask whether a
// checkout was paid, and authenticate provider callbacks.
package payment

import (
	"context"
	"errors"
)

// ErrInvalidWebhook is returned for callbacks that fail signature checks
// or cannot be decoded.
var ErrInvalidWebhook = errors.New("invalid webhook")

// Checkout describes the hosted payment page to create.
type Checkout struct {
	BookingID      uint64
	StudentID      uint64
	AmountCents    int64
	Currency       string
	Description    string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// Session is a created checkout.  URL is where the student is redirected.
type Session struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// Verification is the provider's view of a checkout.
type Verification struct {
	Paid      bool
	BookingID uint64
}

// WebhookKind classifies provider callbacks the service acts on.
type WebhookKind string

const (
	WebhookCompleted WebhookKind = "completed"
	WebhookExpired   WebhookKind = "expired"
	WebhookIgnored   WebhookKind = "ignored"
)

// WebhookEvent is a verified provider callback.
type WebhookEvent struct {
	Kind      WebhookKind
	Type      string
	SessionID string
	BookingID uint64
	Paid      bool
}

// Provider is implemented by payment backends.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, c Checkout) (Session, error)
	VerifySession(ctx context.Context, sessionID string) (Verification, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
