// Package checkout snapshots the cart into a hosted payment session. It
// never mutates the cart: an abandoned checkout leaves the basket intact
// and only a confirmed payment (the webhook) empties it.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/DRBATA/thewaterdotbar/internal/cart"
	"github.com/DRBATA/thewaterdotbar/internal/catalog"
	"github.com/DRBATA/thewaterdotbar/internal/payments"
)

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrNoPriceableItems = errors.New("no items in cart have pricing information")
)

type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, p payments.CheckoutParams) (string, error)
}

type Service struct {
	carts    cart.Repository
	items    catalog.Repository
	provider PaymentProvider
	baseURL  string
}

func NewService(carts cart.Repository, items catalog.Repository, provider PaymentProvider, baseURL string) *Service {
	return &Service{carts: carts, items: items, provider: provider, baseURL: baseURL}
}

// CreateSession resolves the session's cart lines to payment price refs
// and opens the provider checkout. Items without a price ref are dropped
// with a warning rather than failing the whole checkout; only an empty
// result is fatal.
func (s *Service) CreateSession(ctx context.Context, sessionToken, campaign string) (string, error) {
	lines, err := s.carts.Lines(ctx, sessionToken)
	if err != nil {
		return "", fmt.Errorf("load cart: %w", err)
	}
	if len(lines) == 0 {
		return "", ErrEmptyCart
	}

	priced := make([]payments.LineItem, 0, len(lines))
	for _, ln := range lines {
		it, err := s.items.GetByID(ctx, ln.ItemID)
		if err != nil || it.StripePriceID == "" {
			log.Printf("[checkout] item %s has no payment price ref, dropping from session", ln.ItemID)
			continue
		}
		priced = append(priced, payments.LineItem{PriceRef: it.StripePriceID, Qty: int64(ln.Qty)})
	}
	if len(priced) == 0 {
		return "", ErrNoPriceableItems
	}

	url, err := s.provider.CreateCheckoutSession(ctx, payments.CheckoutParams{
		Lines:        priced,
		SuccessURL:   s.baseURL + "/success?session={CHECKOUT_SESSION_ID}",
		CancelURL:    s.baseURL + "/cart",
		SessionToken: sessionToken,
		Campaign:     campaign,
	})
	if err != nil {
		return "", fmt.Errorf("open payment session: %w", err)
	}
	return url, nil
}
