// Package payments wraps the Stripe API: opening hosted checkout sessions
// and verifying/decoding the webhook events they later produce. The loose
// event payload is decoded here into typed values so the rest of the
// system never touches raw Stripe JSON.
package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
)

type LineItem struct {
	PriceRef string
	Qty      int64
}

type CheckoutParams struct {
	Lines        []LineItem
	SuccessURL   string
	CancelURL    string
	SessionToken string
	Campaign     string
}

// CheckoutCompleted is the typed form of a checkout.session.completed
// event. PaymentRef is the provider's checkout-session id and doubles as
// the order idempotency key.
type CheckoutCompleted struct {
	PaymentRef   string
	SessionToken string
	Campaign     string
	Email        string
	Total        string
	Currency     string
}

type Client struct {
	webhookSecret string
}

func NewClient(secretKey, webhookSecret string) *Client {
	stripe.Key = secretKey
	return &Client{webhookSecret: webhookSecret}
}

// CreateCheckoutSession opens a hosted checkout and returns its URL. The
// session token and attribution tag ride along as opaque metadata and come
// back on the completion webhook.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error) {
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(p.Lines))
	for _, ln := range p.Lines {
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(ln.PriceRef),
			Quantity: stripe.Int64(ln.Qty),
		})
	}
	params := &stripe.CheckoutSessionParams{
		Mode:                stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:           items,
		SuccessURL:          stripe.String(p.SuccessURL),
		CancelURL:           stripe.String(p.CancelURL),
		AllowPromotionCodes: stripe.Bool(true),
	}
	params.Context = ctx
	params.AddMetadata("session_id", p.SessionToken)
	if p.Campaign != "" {
		params.AddMetadata("utm_campaign", p.Campaign)
	}

	cs, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return cs.URL, nil
}

// ParseEvent verifies the webhook signature and decodes the envelope. A
// bad signature is an error; an event type we do not handle returns
// (nil, nil) and must be acked, not rejected.
func (c *Client) ParseEvent(payload []byte, sigHeader string) (*CheckoutCompleted, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, c.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("verify webhook signature: %w", err)
	}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return nil, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}

	out := &CheckoutCompleted{
		PaymentRef:   cs.ID,
		SessionToken: cs.Metadata["session_id"],
		Campaign:     cs.Metadata["utm_campaign"],
		Currency:     string(cs.Currency),
	}
	if cs.CustomerDetails != nil {
		out.Email = cs.CustomerDetails.Email
	}
	if cs.AmountTotal > 0 {
		// minor units -> decimal string
		out.Total = decimal.NewFromInt(cs.AmountTotal).Shift(-2).StringFixed(2)
	}
	return out, nil
}
