package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrAlreadyMigrated: the orders insert lost the uniqueness race on
	// stripe_session_id, so another delivery created the order.
	ErrAlreadyMigrated = errors.New("payment already migrated")
	// ErrNoCart: no cart header (or no lines) exists for the session.
	ErrNoCart = errors.New("no cart to migrate")
	// ErrPinExhausted: bounded PIN retries ran out.
	ErrPinExhausted = errors.New("could not allocate a unique pin")
)

const maxPinAttempts = 50

type Repository interface {
	FindOrderID(ctx context.Context, paymentRef string) (string, error)
	MigrateCart(ctx context.Context, p Payment) (string, error)
}

type PGRepo struct {
	db *pgxpool.Pool
	// GenPin draws candidate PIN codes for ticket lines.
	GenPin func() string
}

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db, GenPin: RandomPin} }

// FindOrderID returns the order id for a payment ref, or "" if no order
// exists yet. This is the cheap replay check before attempting migration.
func (r *PGRepo) FindOrderID(ctx context.Context, paymentRef string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var id string
	err := r.db.QueryRow(ctx, `
    SELECT id FROM orders WHERE stripe_session_id=$1
  `, paymentRef).Scan(&id)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

type cartSnapshot struct {
	itemID string
	qty    int
	name   string
	price  string
	kind   string
}

// MigrateCart converts the session's cart into an immutable order inside
// one transaction: order insert (uniqueness-guarded), one order_items row
// per line with a freshly minted PIN for ticket items, then the cart
// header is dropped. Any failure rolls the whole thing back so a retried
// delivery redoes the work from scratch.
func (r *PGRepo) MigrateCart(ctx context.Context, p Payment) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cartID string
	err = tx.QueryRow(ctx, `
    SELECT id FROM cart_headers WHERE session_id=$1
  `, p.SessionToken).Scan(&cartID)
	if err == pgx.ErrNoRows {
		return "", ErrNoCart
	}
	if err != nil {
		return "", err
	}

	// Snapshot name/price/kind from the catalog inside the transaction so
	// the order records what was actually sold.
	rows, err := tx.Query(ctx, `
    SELECT c.item_id, c.qty, i.name, i.price::text, i.kind
    FROM cart_items c
    JOIN items i ON i.id = c.item_id
    WHERE c.cart_id=$1
  `, cartID)
	if err != nil {
		return "", err
	}
	var lines []cartSnapshot
	for rows.Next() {
		var ln cartSnapshot
		if err := rows.Scan(&ln.itemID, &ln.qty, &ln.name, &ln.price, &ln.kind); err != nil {
			rows.Close()
			return "", err
		}
		lines = append(lines, ln)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", ErrNoCart
	}

	total, err := orderTotal(p.Total, lines)
	if err != nil {
		return "", err
	}

	orderID := uuid.NewString()
	tag, err := tx.Exec(ctx, `
    INSERT INTO orders (id, email, total, currency, stripe_session_id, utm_campaign, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,NOW())
    ON CONFLICT (stripe_session_id) DO NOTHING
  `, orderID, p.Email, total, p.Currency, p.Ref, p.Campaign)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 0 {
		return "", ErrAlreadyMigrated
	}

	for _, ln := range lines {
		if err := r.insertItem(ctx, tx, orderID, ln); err != nil {
			return "", err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_headers WHERE id=$1`, cartID); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return orderID, nil
}

// insertItem writes one order line. Ticket lines get a PIN; the insert
// uses ON CONFLICT DO NOTHING against the partial pin index so a
// collision surfaces as zero rows affected instead of aborting the
// transaction, and the loop simply draws again.
func (r *PGRepo) insertItem(ctx context.Context, tx pgx.Tx, orderID string, ln cartSnapshot) error {
	err := insertLineWithPin(ln.kind == "ticket", r.GenPin, maxPinAttempts, func(pin *string) (bool, error) {
		tag, err := tx.Exec(ctx, `
      INSERT INTO order_items (id, order_id, item_id, name, qty, unit_price, pin_code)
      VALUES ($1,$2,$3,$4,$5,$6,$7)
      ON CONFLICT (pin_code) WHERE pin_code IS NOT NULL DO NOTHING
    `, uuid.NewString(), orderID, ln.itemID, ln.name, ln.qty, ln.price, pin)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() > 0, nil
	})
	if err != nil {
		return fmt.Errorf("item %s: %w", ln.itemID, err)
	}
	return nil
}

// insertLineWithPin runs the bounded draw-and-insert loop. insert reports
// false when the drawn PIN lost against the global uniqueness index; the
// next iteration draws a fresh code. Lines without redemption insert once
// with a nil PIN, which never conflicts.
func insertLineWithPin(redeemable bool, gen func() string, attempts int, insert func(pin *string) (bool, error)) error {
	if !redeemable {
		_, err := insert(nil)
		return err
	}
	for i := 0; i < attempts; i++ {
		code := gen()
		ok, err := insert(&code)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrPinExhausted
}

// orderTotal prefers the provider-reported total and falls back to
// Σ qty × unit price from the snapshot.
func orderTotal(reported string, lines []cartSnapshot) (string, error) {
	if reported != "" {
		return reported, nil
	}
	sum := decimal.Zero
	for _, ln := range lines {
		price, err := decimal.NewFromString(ln.price)
		if err != nil {
			return "", fmt.Errorf("bad price for item %s: %w", ln.itemID, err)
		}
		sum = sum.Add(price.Mul(decimal.NewFromInt(int64(ln.qty))))
	}
	return sum.StringFixed(2), nil
}
