package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/gatherly/gatherly/internal/checkout"
	"github.com/gatherly/gatherly/internal/config"
	"github.com/gatherly/gatherly/internal/connect"
	"github.com/gatherly/gatherly/internal/database"
	"github.com/gatherly/gatherly/internal/handler"
	"github.com/gatherly/gatherly/internal/payments"
	"github.com/gatherly/gatherly/internal/queue"
	"github.com/gatherly/gatherly/internal/repository"
	"github.com/gatherly/gatherly/internal/router"
	queue_publisher "github.com/gatherly/gatherly/internal/service"
	"github.com/gatherly/gatherly/internal/webhook"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env wins
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient() // nil when REDIS_ADDR is unset

	// Repositories.
	inventory := repository.NewInventoryRepo(db)
	identities := repository.NewIdentityRepo(db)
	events := repository.NewEventRepo(db, inventory)
	orders := repository.NewOrderRepo(db, inventory)
	tokens := repository.NewTokenRepo(db)
	attempts := repository.NewLinkAttemptRepo(db)

	// Payment processor client and the payout-link machinery.
	processor := payments.NewClient(cfg.ProcessorBaseURL, cfg.ProcessorClientID, cfg.ProcessorSecret, cfg.ProcessorTimeout)
	sessions := connect.NewSessionStore(rdb)
	cookies := connect.NewCookieCodec(cfg.JWTSecret, cfg.LinkCookieTTL)
	coordinator := connect.NewCoordinator(processor, identities, attempts, sessions, cookies, cfg.LinkAttemptTTL, cfg.HeuristicWindow)

	factory := checkout.NewFactory(events, identities, inventory, processor,
		cfg.PlatformFeePercent, cfg.Currency, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)

	publisher := queue_publisher.Publisher{}
	webhooks := webhook.NewProcessor(cfg.WebhookSecret, orders, publisher)

	// Fulfillment fan-out consumer; the HTTP path never depends on it.
	go func() {
		if err := queue.StartFulfillmentConsumer(); err != nil {
			log.Printf("[queue] consumer stopped: %v", err)
		}
	}()

	// Expired pending link attempts are garbage, not state; sweep them
	// hourly so the table stays small.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if n, err := attempts.DeleteExpired(ctx); err != nil {
				log.Printf("[connect] expired-attempt sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("[connect] swept %d expired link attempts", n)
			}
			cancel()
		}
	}()

	e := echo.New()
	e.HideBanner = true
	router.Register(e, cfg, router.Handlers{
		Auth:     handler.NewAuthHandler(cfg, identities, tokens),
		Connect:  handler.NewConnectHandler(cfg, coordinator),
		Events:   handler.NewEventHandler(events, inventory),
		Checkout: handler.NewCheckoutHandler(factory),
		Webhook:  handler.NewWebhookHandler(webhooks),
		Admin:    handler.NewAdminHandler(orders),
	}, coordinator, sessions, rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
