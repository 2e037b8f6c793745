package catalog

import "time"

const (
	// KindTicket items carry a physical redemption: fulfillment mints a
	// single-use PIN for each ticket line at migration time.
	KindTicket = "ticket"
	// KindStandard items are paid for but never redeemed at the door.
	KindStandard = "standard"
)

type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// We store price as a string to avoid rounding errors (NUMERIC in Postgres)
	Price string `json:"price"`
	// StripePriceID is the external payment-price reference; empty means
	// the item cannot be checked out.
	StripePriceID string    `json:"stripe_price_id,omitempty"`
	Kind          string    `json:"kind"`
	CreatedAt     time.Time `json:"created_at"`
}

func (i *Item) Redeemable() bool { return i.Kind == KindTicket }

// ListResponse represents the paginated menu response.
type ListResponse struct {
	Q      string `json:"q,omitempty"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Items  []Item `json:"items"`
}
