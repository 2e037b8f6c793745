package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("order not found")
)

// Reader is the read-only view over migrated orders. Writes happen only
// inside the fulfillment migration transaction.
type Reader interface {
	GetByPaymentRef(ctx context.Context, ref string) (*Order, error)
	GetItems(ctx context.Context, orderID string) ([]Item, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) GetByPaymentRef(ctx context.Context, ref string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var o Order
	err := r.db.QueryRow(ctx, `
    SELECT id, email, total::text, currency, stripe_session_id, utm_campaign, created_at
    FROM orders WHERE stripe_session_id=$1
  `, ref).Scan(&o.ID, &o.Email, &o.Total, &o.Currency, &o.StripeSessionID, &o.Campaign, &o.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PGRepo) GetItems(ctx context.Context, orderID string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
    SELECT id, order_id, item_id, name, qty, unit_price::text, COALESCE(pin_code,''), claimed_at
    FROM order_items
    WHERE order_id = $1
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ItemID, &it.Name, &it.Qty, &it.UnitPrice, &it.PinCode, &it.ClaimedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
