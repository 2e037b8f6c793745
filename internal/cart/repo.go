package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Upsert(ctx context.Context, sessionID, userID, itemID string, qty int) (*Line, error)
	RemoveOne(ctx context.Context, sessionID, itemID string) error
	Lines(ctx context.Context, sessionID string) ([]Line, error)
	Clear(ctx context.Context, sessionID string) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

// Upsert creates the header on demand and adds qty to the item's line.
// Two concurrent first-adds race on the header insert; ON CONFLICT DO
// NOTHING plus the re-fetch makes the loser adopt the winner's header.
func (r *PGRepo) Upsert(ctx context.Context, sessionID, userID, itemID string, qty int) (*Line, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var uid *string
	if userID != "" {
		uid = &userID
	}
	if _, err := tx.Exec(ctx, `
    INSERT INTO cart_headers (id, session_id, user_id, created_at)
    VALUES ($1,$2,$3,NOW())
    ON CONFLICT (session_id) DO NOTHING
  `, uuid.NewString(), sessionID, uid); err != nil {
		return nil, err
	}

	var cartID string
	if err := tx.QueryRow(ctx, `
    SELECT id FROM cart_headers WHERE session_id=$1
  `, sessionID).Scan(&cartID); err != nil {
		return nil, err
	}

	var ln Line
	if err := tx.QueryRow(ctx, `
    INSERT INTO cart_items (id, cart_id, item_id, qty)
    VALUES ($1,$2,$3,$4)
    ON CONFLICT (cart_id, item_id)
    DO UPDATE SET qty = cart_items.qty + EXCLUDED.qty
    RETURNING id, cart_id, item_id, qty
  `, uuid.NewString(), cartID, itemID, qty).Scan(&ln.ID, &ln.CartID, &ln.ItemID, &ln.Qty); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &ln, nil
}

// RemoveOne decrements the line by one, deleting it at zero and deleting
// the header once no lines remain. Removal of an absent line is a no-op.
func (r *PGRepo) RemoveOne(ctx context.Context, sessionID, itemID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cartID string
	err = tx.QueryRow(ctx, `
    SELECT id FROM cart_headers WHERE session_id=$1
  `, sessionID).Scan(&cartID)
	if err == pgx.ErrNoRows {
		return tx.Commit(ctx)
	}
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
    UPDATE cart_items SET qty = qty - 1
    WHERE cart_id=$1 AND item_id=$2 AND qty > 1
  `, cartID, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// qty was 1, or no such line at all
		if _, err := tx.Exec(ctx, `
      DELETE FROM cart_items WHERE cart_id=$1 AND item_id=$2
    `, cartID, itemID); err != nil {
			return err
		}
		var remaining int
		if err := tx.QueryRow(ctx, `
      SELECT COUNT(*) FROM cart_items WHERE cart_id=$1
    `, cartID).Scan(&remaining); err != nil {
			return err
		}
		if remaining == 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM cart_headers WHERE id=$1`, cartID); err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) Lines(ctx context.Context, sessionID string) ([]Line, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
    SELECT c.id, c.cart_id, c.item_id, c.qty
    FROM cart_items c
    JOIN cart_headers h ON h.id = c.cart_id
    WHERE h.session_id=$1
  `, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var ln Line
		if err := rows.Scan(&ln.ID, &ln.CartID, &ln.ItemID, &ln.Qty); err != nil {
			return nil, err
		}
		out = append(out, ln)
	}
	return out, rows.Err()
}

// Clear drops the header; cart_items cascade away with it.
func (r *PGRepo) Clear(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `DELETE FROM cart_headers WHERE session_id=$1`, sessionID)
	return err
}
