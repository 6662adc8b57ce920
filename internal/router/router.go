// Package router maps HTTP routes to handlers and applies the
// middleware stack: JWT auth, role checks, the pending payout-link
// recovery sweep, rate limiting and the Redis response cache.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/gatherly/gatherly/internal/config"
	"github.com/gatherly/gatherly/internal/connect"
	"github.com/gatherly/gatherly/internal/handler"
	"github.com/gatherly/gatherly/internal/middleware"
)

// Handlers carries every handler the route table needs.
type Handlers struct {
	Auth     *handler.AuthHandler
	Connect  *handler.ConnectHandler
	Events   *handler.EventHandler
	Checkout *handler.CheckoutHandler
	Webhook  *handler.WebhookHandler
	Admin    *handler.AdminHandler
}

// Register wires all routes. rdb may be nil, in which case rate
// limiting and response caching degrade to pass-through.
func Register(e *echo.Echo, cfg config.Config, h Handlers, co *connect.Coordinator, sessions *connect.SessionStore, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	rateLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	// Auth endpoints. Login carries the rate limiter so credential
	// stuffing burns the bucket, not the database.
	auth := e.Group("/v1/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login, rateLimit)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/logout", h.Auth.Logout)

	// The OAuth redirect back from the processor arrives on a bare
	// browser navigation that may carry no session at all, so the
	// callback cannot sit behind the JWT middleware.
	e.GET("/v1/connect/callback", h.Connect.Callback)

	// Processor webhooks authenticate by signature, not by JWT.
	e.POST("/v1/payments/webhook", h.Webhook.Receive)

	// Public browse, cached.
	e.GET("/v1/events", h.Events.ListUpcoming, cache)
	e.GET("/v1/events/:id", h.Events.Get, cache)
	e.GET("/v1/events/:id/availability", h.Events.Availability)

	// Everything below requires a valid access token. The recovery
	// sweep runs on every authenticated request so an organizer who
	// lost their session mid-handshake is healed the moment they are
	// back.
	authed := e.Group("/v1")
	authed.Use(middleware.JWTAuth(cfg.JWTSecret))
	authed.Use(middleware.PendingLinkRecovery(co, sessions))

	authed.GET("/me", h.Auth.Me)
	authed.GET("/connect", h.Connect.Begin)
	authed.GET("/connect/status", h.Connect.Status)

	organizer := authed.Group("", middleware.RequireRole("ORGANIZER", "ADMIN"))
	organizer.POST("/events", h.Events.Create)
	organizer.POST("/events/:id/products", h.Events.AddProduct)
	organizer.POST("/events/:id/vendor-spots", h.Events.AddVendorSpot)
	organizer.POST("/events/:id/volunteer-shifts", h.Events.AddVolunteerShift)

	buyer := authed.Group("", middleware.RequireRole("BUYER", "ORGANIZER", "ADMIN"))
	buyer.POST("/checkout", h.Checkout.Create, rateLimit)

	admin := authed.Group("/admin", middleware.RequireRole("ADMIN"))
	admin.GET("/transactions", h.Admin.SearchTransactions)
}
