package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DRBATA/thewaterdotbar/internal/cart"
	"github.com/DRBATA/thewaterdotbar/internal/catalog"
	"github.com/DRBATA/thewaterdotbar/internal/checkout"
	"github.com/DRBATA/thewaterdotbar/internal/claim"
	"github.com/DRBATA/thewaterdotbar/internal/fulfillment"
	"github.com/DRBATA/thewaterdotbar/internal/httpx"
	"github.com/DRBATA/thewaterdotbar/internal/order"
	"github.com/DRBATA/thewaterdotbar/internal/payments"
	"github.com/DRBATA/thewaterdotbar/internal/session"
)

type cartService interface {
	AddItem(ctx context.Context, sessionID, userID, itemID string, qty int) (*cart.Line, error)
	RemoveOneOrAll(ctx context.Context, sessionID, itemID string) error
	Get(ctx context.Context, sessionID string) ([]cart.Line, error)
	Clear(ctx context.Context, sessionID string) error
}

type checkoutService interface {
	CreateSession(ctx context.Context, sessionToken, campaign string) (string, error)
}

type eventParser interface {
	ParseEvent(payload []byte, sigHeader string) (*payments.CheckoutCompleted, error)
}

type migrator interface {
	HandlePaymentCompleted(ctx context.Context, p fulfillment.Payment) (fulfillment.Result, error)
}

type claimService interface {
	Lookup(ctx context.Context, pin string) (*claim.Ticket, error)
	Claim(ctx context.Context, pin string) (*time.Time, error)
}

type appDeps struct {
	items     catalog.Repository
	carts     cartService
	checkout  checkoutService
	parser    eventParser
	fulfill   migrator
	orders    order.Reader
	claims    claimService
	sessions  *session.Manager
	staffUser string
	staffHash string
}

func newRouter(d appDeps) *gin.Engine {
	r := gin.New()
	r.Use(httpx.RequestID(), httpx.Logger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/menu", menuHandler(d.items))

	// The webhook authenticates by signature, not by session cookie.
	r.POST("/api/stripe/webhook", stripeWebhookHandler(d.parser, d.fulfill))
	r.GET("/api/order/receipt", receiptHandler(d.orders))

	api := r.Group("/api", d.sessions.Middleware())
	api.POST("/cart/add", addToCartHandler(d.carts))
	api.POST("/cart/remove", removeFromCartHandler(d.carts))
	api.GET("/cart", getCartHandler(d.carts))
	api.POST("/cart/clear", clearCartHandler(d.carts))
	api.POST("/checkout", checkoutHandler(d.checkout))

	staff := r.Group("/claim", httpx.StaffAuth(d.staffUser, d.staffHash))
	staff.GET("/:pin", claimLookupHandler(d.claims))
	staff.POST("/:pin", claimHandler(d.claims))

	return r
}

func menuHandler(items catalog.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := catalog.Query{Q: c.Query("q")}
		if v, err := intQuery(c, "limit"); err == nil {
			q.Limit = v
		}
		if v, err := intQuery(c, "offset"); err == nil {
			q.Offset = v
		}
		out, err := items.List(c.Request.Context(), q)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list items"})
			return
		}
		if out == nil {
			out = []catalog.Item{}
		}
		c.JSON(http.StatusOK, catalog.ListResponse{Q: q.Q, Limit: q.Limit, Offset: q.Offset, Items: out})
	}
}

type cartMutation struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

func addToCartHandler(carts cartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in cartMutation
		if err := c.ShouldBindJSON(&in); err != nil || in.ItemID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing item_id"})
			return
		}
		// The user id on the cart header is reserved for a verified
		// identity; nothing client-supplied is trusted for it.
		ln, err := carts.AddItem(c.Request.Context(), session.Token(c), "", in.ItemID, in.Qty)
		if errors.Is(err, cart.ErrInvalidItem) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown item"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "couldn't update cart"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "line": ln})
	}
}

func removeFromCartHandler(carts cartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in cartMutation
		if err := c.ShouldBindJSON(&in); err != nil || in.ItemID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing item_id"})
			return
		}
		if err := carts.RemoveOneOrAll(c.Request.Context(), session.Token(c), in.ItemID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "couldn't update cart"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func getCartHandler(carts cartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		lines, err := carts.Get(c.Request.Context(), session.Token(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "couldn't read cart"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": lines})
	}
}

func clearCartHandler(carts cartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := carts.Clear(c.Request.Context(), session.Token(c)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "couldn't update cart"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func checkoutHandler(co checkoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in struct {
			Campaign string `json:"utm_campaign"`
		}
		_ = c.ShouldBindJSON(&in) // body is optional

		url, err := co.CreateSession(c.Request.Context(), session.Token(c), in.Campaign)
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
		case errors.Is(err, checkout.ErrNoPriceableItems):
			c.JSON(http.StatusBadRequest, gin.H{"error": "no items in cart have valid pricing information"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "couldn't start checkout"})
		default:
			c.JSON(http.StatusOK, gin.H{"url": url})
		}
	}
}

// stripeWebhookHandler acks replays and anomalies with 200 so the provider
// stops redelivering; only signature failures get a 4xx and only real
// infra failures get a 5xx (which the provider retries, intentionally).
func stripeWebhookHandler(parser eventParser, ful migrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
			return
		}
		evt, err := parser.ParseEvent(payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "webhook verification failed"})
			return
		}
		if evt == nil {
			// an event type we don't handle
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}

		res, err := ful.HandlePaymentCompleted(c.Request.Context(), fulfillment.Payment{
			Ref:          evt.PaymentRef,
			SessionToken: evt.SessionToken,
			Campaign:     evt.Campaign,
			Email:        evt.Email,
			Total:        evt.Total,
			Currency:     evt.Currency,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "error processing order"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "order_id": res.OrderID})
	}
}

func receiptHandler(orders order.Reader) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := c.Query("session_id")
		if ref == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing session_id"})
			return
		}
		o, err := orders.GetByPaymentRef(c.Request.Context(), ref)
		if errors.Is(err, order.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "load order"})
			return
		}
		items, err := orders.GetItems(c.Request.Context(), o.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "load order items"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o, "items": items})
	}
}

func claimLookupHandler(claims claimService) gin.HandlerFunc {
	return func(c *gin.Context) {
		pin := c.Param("pin")
		if !validPin(pin) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "PIN must be 4 digits"})
			return
		}
		t, err := claims.Lookup(c.Request.Context(), pin)
		switch {
		case errors.Is(err, claim.ErrPinNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "PIN not found"})
		case errors.Is(err, claim.ErrPinAlreadyClaimed):
			c.JSON(http.StatusGone, gin.H{"error": "already claimed", "claimed_at": t.ClaimedAt})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed, try again"})
		default:
			c.JSON(http.StatusOK, t)
		}
	}
}

func claimHandler(claims claimService) gin.HandlerFunc {
	return func(c *gin.Context) {
		pin := c.Param("pin")
		if !validPin(pin) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "PIN must be 4 digits"})
			return
		}
		ts, err := claims.Claim(c.Request.Context(), pin)
		switch {
		case errors.Is(err, claim.ErrPinNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "PIN not found"})
		case errors.Is(err, claim.ErrPinAlreadyClaimed):
			c.JSON(http.StatusGone, gin.H{"error": "already claimed", "claimed_at": ts})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "claim failed, try again"})
		default:
			c.JSON(http.StatusOK, gin.H{"success": true, "claimed_at": ts})
		}
	}
}

func validPin(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, ch := range pin {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

func intQuery(c *gin.Context, key string) (int, error) {
	return strconv.Atoi(c.Query(key))
}
