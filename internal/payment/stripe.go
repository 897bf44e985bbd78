package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	metaBookingID = "booking_id"
	metaStudentID = "student_id"
)

// StripeProvider creates hosted Checkout Sessions.
type StripeProvider struct {
	sc            *stripe.Client
	webhookSecret string
}

// NewStripeProvider builds a provider from a secret key and the endpoint's
// webhook signing secret.
func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	return &StripeProvider{sc: stripe.NewClient(secretKey), webhookSecret: webhookSecret}
}

// NewStripeProviderWithClient is used when the caller configures the
// client itself (tests, custom backends).
func NewStripeProviderWithClient(sc *stripe.Client, webhookSecret string) *StripeProvider {
	return &StripeProvider{sc: sc, webhookSecret: webhookSecret}
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, c Checkout) (Session, error) {
	bookingID := strconv.FormatUint(c.BookingID, 10)
	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		UIMode:            stripe.String("hosted"),
		SuccessURL:        stripe.String(c.SuccessURL),
		CancelURL:         stripe.String(c.CancelURL),
		ClientReferenceID: stripe.String(bookingID),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripe.String(c.Currency),
					UnitAmount: stripe.Int64(c.AmountCents),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(c.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			metaBookingID: bookingID,
			metaStudentID: strconv.FormatUint(c.StudentID, 10),
		},
	}
	if c.IdempotencyKey != "" {
		params.SetIdempotencyKey(c.IdempotencyKey)
	}
	cs, err := p.sc.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return Session{}, err
	}
	return Session{ID: cs.ID, URL: cs.URL}, nil
}

func (p *StripeProvider) VerifySession(ctx context.Context, sessionID string) (Verification, error) {
	cs, err := p.sc.V1CheckoutSessions.Retrieve(ctx, sessionID, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		return Verification{}, err
	}
	return verificationOf(cs), nil
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	out := WebhookEvent{Kind: WebhookIgnored, Type: string(event.Type)}
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		out.Kind = WebhookCompleted
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		out.Kind = WebhookExpired
	default:
		return out, nil
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	v := verificationOf(&cs)
	out.SessionID = cs.ID
	out.BookingID = v.BookingID
	out.Paid = v.Paid
	return out, nil
}

func verificationOf(cs *stripe.CheckoutSession) Verification {
	v := Verification{Paid: cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid}
	ref := cs.Metadata[metaBookingID]
	if ref == "" {
		ref = cs.ClientReferenceID
	}
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		v.BookingID = id
	}
	return v
}
