// Package cart holds the mutable per-session basket. Item ids are
// validated against the catalog before any mutation; everything else is
// delegated to the repository, one short transaction per call.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/DRBATA/thewaterdotbar/internal/catalog"
)

var (
	ErrInvalidItem = errors.New("invalid item")
)

type Service struct {
	repo  Repository
	items catalog.Repository
}

func NewService(repo Repository, items catalog.Repository) *Service {
	return &Service{repo: repo, items: items}
}

// AddItem increments the line for itemID by qty (default 1), creating the
// header and the line on demand.
func (s *Service) AddItem(ctx context.Context, sessionID, userID, itemID string, qty int) (*Line, error) {
	if qty <= 0 {
		qty = 1
	}
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidItem, itemID)
		}
		return nil, fmt.Errorf("validate item %s: %w", itemID, err)
	}
	return s.repo.Upsert(ctx, sessionID, userID, itemID, qty)
}

// RemoveOneOrAll decrements the line by one; the repository deletes the
// line at zero and the header once empty. Never an error for a missing
// line or cart.
func (s *Service) RemoveOneOrAll(ctx context.Context, sessionID, itemID string) error {
	return s.repo.RemoveOne(ctx, sessionID, itemID)
}

// Get returns the session's lines; an empty slice when no cart exists.
func (s *Service) Get(ctx context.Context, sessionID string) ([]Line, error) {
	lines, err := s.repo.Lines(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []Line{}
	}
	return lines, nil
}

func (s *Service) Clear(ctx context.Context, sessionID string) error {
	return s.repo.Clear(ctx, sessionID)
}
