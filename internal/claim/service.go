// Package claim redeems single-use ticket PINs at the door. The only
// correctness mechanism is the conditional row update in the repository;
// no lock is held between lookup and claim, so two staff scanning the
// same token concurrently resolve to exactly one winner.
package claim

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPinNotFound       = errors.New("pin not found")
	ErrPinAlreadyClaimed = errors.New("pin already claimed")
	// ErrClaimRaceLost: the conditional update touched zero rows. Internal
	// to the package; Claim reclassifies it via a re-fetch.
	ErrClaimRaceLost = errors.New("claim update affected no rows")
)

// Ticket is the operator's view of a redeemable order line.
type Ticket struct {
	LineID     string     `json:"id"`
	OrderID    string     `json:"order_id"`
	ItemID     string     `json:"item_id"`
	Name       string     `json:"name"`
	Qty        int        `json:"qty"`
	PinCode    string     `json:"pin_code"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	OrderEmail string     `json:"order_email"`
	OrderedAt  time.Time  `json:"ordered_at"`
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// Lookup returns the ticket for a PIN. An already-claimed ticket comes
// back alongside ErrPinAlreadyClaimed so the operator can be shown when
// it was redeemed.
func (s *Service) Lookup(ctx context.Context, pin string) (*Ticket, error) {
	t, err := s.repo.GetByPin(ctx, pin)
	if err != nil {
		return nil, err
	}
	if t.ClaimedAt != nil {
		return t, ErrPinAlreadyClaimed
	}
	return t, nil
}

// Claim flips the PIN unclaimed -> claimed. When the conditional update
// loses (zero rows), the re-fetch decides whether the PIN never existed
// or someone else claimed it first.
func (s *Service) Claim(ctx context.Context, pin string) (*time.Time, error) {
	ts, err := s.repo.ClaimPin(ctx, pin)
	if err == nil {
		return ts, nil
	}
	if !errors.Is(err, ErrClaimRaceLost) {
		return nil, err
	}

	t, ferr := s.repo.GetByPin(ctx, pin)
	if ferr != nil {
		return nil, ferr
	}
	if t.ClaimedAt != nil {
		return t.ClaimedAt, ErrPinAlreadyClaimed
	}
	// Row exists and is unclaimed yet our update matched nothing; only a
	// transient store inconsistency can produce this. Surface it as-is.
	return nil, err
}
