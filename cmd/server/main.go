package main

import (
	"context"
	"log"
	"strings"

	"github.com/DRBATA/thewaterdotbar/internal/cart"
	"github.com/DRBATA/thewaterdotbar/internal/catalog"
	"github.com/DRBATA/thewaterdotbar/internal/checkout"
	"github.com/DRBATA/thewaterdotbar/internal/claim"
	"github.com/DRBATA/thewaterdotbar/internal/config"
	"github.com/DRBATA/thewaterdotbar/internal/db"
	"github.com/DRBATA/thewaterdotbar/internal/fulfillment"
	"github.com/DRBATA/thewaterdotbar/internal/order"
	"github.com/DRBATA/thewaterdotbar/internal/payments"
	"github.com/DRBATA/thewaterdotbar/internal/session"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	if err := db.RunMigrations(cfg.PostgresDSN, cfg.MigrationsPath); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	pool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	items := catalog.NewPGRepo(pool)
	cartRepo := cart.NewPGRepo(pool)
	stripe := payments.NewClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	r := newRouter(appDeps{
		items:     items,
		carts:     cart.NewService(cartRepo, items),
		checkout:  checkout.NewService(cartRepo, items, stripe, cfg.BaseURL),
		parser:    stripe,
		fulfill:   fulfillment.NewService(fulfillment.NewPGRepo(pool)),
		orders:    order.NewPGRepo(pool),
		claims:    claim.NewService(claim.NewPGRepo(pool)),
		sessions:  session.NewManager(cfg.SessionSecret, strings.HasPrefix(cfg.BaseURL, "https://")),
		staffUser: cfg.StaffUser,
		staffHash: cfg.StaffPassHash,
	})

	log.Printf("server listening on %s", cfg.Addr)
	log.Fatal(r.Run(cfg.Addr))
}
