// Package fulfillment converts a paid-for cart into an immutable order.
// The webhook may deliver the same payment event many times, out of
// order, or concurrently; correctness rests on the database-level
// uniqueness of the payment reference, not on any in-process state.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// Payment is the typed payload of a completed-payment notification.
type Payment struct {
	// Ref is the external payment-session reference, unique per payment.
	Ref          string
	SessionToken string
	Campaign     string
	Email        string
	Total        string
	Currency     string
}

type Outcome int

const (
	// OutcomeMigrated: this delivery created the order.
	OutcomeMigrated Outcome = iota
	// OutcomeAlreadyMigrated: a prior or racing delivery created it; this
	// one was a safe no-op.
	OutcomeAlreadyMigrated
	// OutcomeNoCart: no cart and no order exist for the payment. The ack
	// must still succeed, but the case is logged for reconciliation.
	OutcomeNoCart
)

type Result struct {
	OrderID string
	Outcome Outcome
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// HandlePaymentCompleted is the webhook entry point. Replays resolve via
// the cheap order lookup; the insert-uniqueness on the payment ref covers
// the window where two deliveries pass the lookup simultaneously.
func (s *Service) HandlePaymentCompleted(ctx context.Context, p Payment) (Result, error) {
	if p.Ref == "" {
		return Result{}, fmt.Errorf("payment notification without a payment ref")
	}

	if id, err := s.repo.FindOrderID(ctx, p.Ref); err != nil {
		return Result{}, err
	} else if id != "" {
		return Result{OrderID: id, Outcome: OutcomeAlreadyMigrated}, nil
	}

	id, err := s.repo.MigrateCart(ctx, p)
	switch {
	case err == nil:
		log.Printf("[fulfillment] payment=%s migrated to order=%s", p.Ref, id)
		return Result{OrderID: id, Outcome: OutcomeMigrated}, nil

	case errors.Is(err, ErrAlreadyMigrated):
		id, lerr := s.repo.FindOrderID(ctx, p.Ref)
		if lerr != nil {
			return Result{}, lerr
		}
		return Result{OrderID: id, Outcome: OutcomeAlreadyMigrated}, nil

	case errors.Is(err, ErrNoCart):
		// The cart can be gone because a racing delivery migrated it
		// between our lookup and the transaction. Re-check before calling
		// it an anomaly.
		id, lerr := s.repo.FindOrderID(ctx, p.Ref)
		if lerr != nil {
			return Result{}, lerr
		}
		if id != "" {
			return Result{OrderID: id, Outcome: OutcomeAlreadyMigrated}, nil
		}
		log.Printf("[fulfillment] RECONCILE payment=%s session=%s: no cart and no order", p.Ref, p.SessionToken)
		return Result{Outcome: OutcomeNoCart}, nil

	default:
		return Result{}, err
	}
}
