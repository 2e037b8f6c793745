package order

import "time"

// Order is immutable once written by the migration transaction. It is
// never updated or deleted; it is the audit trail of a completed payment.
type Order struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Total string `json:"total"` // NUMERIC -> string
	// Currency is fixed at migration time from the payment event.
	Currency string `json:"currency"`
	// StripeSessionID is unique across all orders; it is the idempotency
	// key against webhook redelivery.
	StripeSessionID string    `json:"stripe_session_id"`
	Campaign        string    `json:"utm_campaign,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Item snapshots a cart line at payment time: name and unit price are
// copied from the catalog so later menu edits cannot rewrite history.
// PinCode is set only for ticket-redeemable items and is unique
// system-wide; ClaimedAt flips once, from null to a timestamp, and is
// never cleared.
type Item struct {
	ID        string     `json:"id"`
	OrderID   string     `json:"order_id"`
	ItemID    string     `json:"item_id"`
	Name      string     `json:"name"`
	Qty       int        `json:"qty"`
	UnitPrice string     `json:"unit_price"`
	PinCode   string     `json:"pin_code,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}
