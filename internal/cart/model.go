package cart

import "time"

// Header is the per-session basket. At most one non-deleted header exists
// per session token (UNIQUE on session_id).
type Header struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Line is one item row in a basket; (cart_id, item_id) is unique, so
// repeated adds increment qty instead of duplicating rows.
type Line struct {
	ID     string `json:"id"`
	CartID string `json:"cart_id"`
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}
