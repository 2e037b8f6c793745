package claim

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	GetByPin(ctx context.Context, pin string) (*Ticket, error)
	ClaimPin(ctx context.Context, pin string) (*time.Time, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) GetByPin(ctx context.Context, pin string) (*Ticket, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var t Ticket
	err := r.db.QueryRow(ctx, `
    SELECT oi.id, oi.order_id, oi.item_id, oi.name, oi.qty, oi.pin_code, oi.claimed_at,
           o.email, o.created_at
    FROM order_items oi
    JOIN orders o ON o.id = oi.order_id
    WHERE oi.pin_code=$1
  `, pin).Scan(&t.LineID, &t.OrderID, &t.ItemID, &t.Name, &t.Qty, &t.PinCode, &t.ClaimedAt,
		&t.OrderEmail, &t.OrderedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrPinNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ClaimPin performs the one atomic compare-and-set in the system: the row
// flips to claimed only if it is still unclaimed. Zero rows back means the
// PIN never existed or a concurrent claim won; the service re-fetches to
// tell those apart.
func (r *PGRepo) ClaimPin(ctx context.Context, pin string) (*time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var claimedAt time.Time
	err := r.db.QueryRow(ctx, `
    UPDATE order_items SET claimed_at = NOW()
    WHERE pin_code=$1 AND claimed_at IS NULL
    RETURNING claimed_at
  `, pin).Scan(&claimedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrClaimRaceLost
	}
	if err != nil {
		return nil, err
	}
	return &claimedAt, nil
}
