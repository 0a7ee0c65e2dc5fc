package http

import (
	"strings"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/config"
	"github.com/ads-marketplace/dealdesk/internal/http/handlers"
	"github.com/ads-marketplace/dealdesk/internal/metrics"
	"github.com/ads-marketplace/dealdesk/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	dealHandler *handlers.DealHandler,
	walletHandler *handlers.WalletHandler,
	sessionHandler *handlers.SessionHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins(cfg.CORSAllowOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))
	app.Use(metrics.Middleware())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "ws_clients": wsHub.Clients()})
	})
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api/v1/desk")
	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute))

	// Meta (без токена, статичные данные)
	api.Get("/meta/statuses", handlers.Statuses)

	// WebSocket: браузер не шлёт Authorization, токен проверяется в HandleWS
	api.Use("/ws", handlers.WSUpgradeMiddleware())
	api.Get("/ws", websocket.New(wsHub.HandleWS))

	protected := api.Group("", middleware.DeskAuthMiddleware(cfg.DeskAPIToken, log))

	// Session
	protected.Get("/session", sessionHandler.GetSession)
	protected.Post("/session/refresh", sessionHandler.RefreshSession)

	// Wallet
	protected.Get("/wallet", walletHandler.GetWallet)
	protected.Put("/wallet", walletHandler.ConnectWallet)
	protected.Delete("/wallet", walletHandler.DisconnectWallet)

	// Deals
	protected.Get("/deals", dealHandler.ListWatched)
	protected.Post("/deals", dealHandler.CreateDeal)
	protected.Get("/deals/:id", dealHandler.GetDeal)
	protected.Delete("/deals/:id/watch", dealHandler.StopWatch)
	protected.Patch("/deals/:id/draft/editor", dealHandler.UpdateEditor)
	protected.Post("/deals/:id/draft/save", dealHandler.SaveDraft)
	protected.Post("/deals/:id/sign", dealHandler.Sign)
	protected.Post("/deals/:id/reject", dealHandler.Reject)
	protected.Post("/deals/:id/deposit", dealHandler.Deposit)
	protected.Post("/deals/:id/chat-link", dealHandler.ChatLink)
	protected.Get("/deals/:id/journal", dealHandler.Journal)
}

func corsOrigins(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "*"
	}
	return raw
}
