package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/auth"
	"github.com/ads-marketplace/dealdesk/internal/config"
	"github.com/ads-marketplace/dealdesk/internal/db"
	"github.com/ads-marketplace/dealdesk/internal/dealstate"
	"github.com/ads-marketplace/dealdesk/internal/dealsync"
	"github.com/ads-marketplace/dealdesk/internal/desk"
	"github.com/ads-marketplace/dealdesk/internal/escrow"
	"github.com/ads-marketplace/dealdesk/internal/events"
	apphttp "github.com/ads-marketplace/dealdesk/internal/http"
	"github.com/ads-marketplace/dealdesk/internal/http/handlers"
	"github.com/ads-marketplace/dealdesk/internal/market"
	"github.com/ads-marketplace/dealdesk/internal/repositories"
	"github.com/ads-marketplace/dealdesk/internal/statsparser"
	"github.com/ads-marketplace/dealdesk/internal/ton"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Launch data: who the desk acts for
	initData := auth.DecodeInitData(cfg.TelegramInitData)
	if cfg.BotToken != "" && initData != "" {
		if _, err := auth.VerifyInitData(initData, cfg.BotToken, cfg.InitDataMaxAge); err != nil {
			log.Fatal("telegram init data rejected", zap.Error(err))
		}
	}
	var viewerID int64
	if u := auth.ParseInitDataUser(initData); u != nil {
		viewerID = u.ID
	}
	log.Info("desk viewer", zap.Int64("telegram_user_id", viewerID))

	// Database (optional, journal only)
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	var journal *repositories.JournalRepo
	if pool != nil {
		defer pool.Close()
		if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		journal = repositories.NewJournalRepo(pool)
	}

	// Redis (optional)
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}

	// Events and token store
	var (
		publisher  events.Publisher
		subscriber events.Subscriber
		tokenStore auth.TokenStore
	)
	if rdb != nil {
		defer rdb.Close()
		publisher = events.NewRedisPublisher(rdb, log)
		subscriber = events.NewRedisSubscriber(rdb, log)
		tokenStore = auth.NewRedisStore(rdb, viewerID)
	} else {
		bus := events.NewLocalBus()
		publisher, subscriber = bus, bus
		tokenStore = auth.NewMemoryStore()
	}

	// Market API + session
	client := market.NewClient(cfg.MarketAPIURL, cfg.HTTPTimeout, log)
	session := auth.NewSession(initData, func(ctx context.Context, initData string) (string, error) {
		return client.Auth(ctx, initData, nil)
	}, tokenStore, cfg.JWTRefreshBuffer, log)
	client.SetTokenSource(session)

	// TON
	lite := ton.LiteConfig{
		Network: cfg.TONNetwork,
		Host:    cfg.LiteServerHost,
		Port:    cfg.LiteServerPort,
		Key:     cfg.LiteServerKey,
	}
	formatter := ton.Formatter{Testnet: lite.IsTestnet()}
	connector, flow := connectTON(ctx, cfg, lite, formatter, journal, log)

	// Desk
	syncOpts := dealsync.Options{
		PollInterval: cfg.DealPollInterval,
		Location:     time.Local,
		Rules:        dealstate.Rules{DepositWindow: cfg.DepositWindow},
	}
	var dealJournal handlers.JournalReader
	if journal != nil {
		syncOpts.Journal = journal
		dealJournal = journal
	}
	preview := statsparser.NewParser(cfg.TMEFetchTimeoutMS, cfg.TMEFetchMaxRetries, 10*time.Minute, log)
	d := desk.New(client, viewerID, desk.Options{
		Sync:        syncOpts,
		IdleTimeout: cfg.WatchIdleTimeout,
		Formatter:   formatter,
	}, flow, connector, preview, publisher, log)
	go d.Run(ctx)

	if cfg.DealID > 0 {
		if _, err := d.Open(ctx, cfg.DealID); err != nil {
			log.Warn("failed to open start deal", zap.Int64("deal_id", cfg.DealID), zap.Error(err))
		}
	}

	// Handlers
	dealHandler := handlers.NewDealHandler(d, dealJournal, log)
	walletHandler := handlers.NewWalletHandler(connector, d, log)
	sessionHandler := handlers.NewSessionHandler(session, d, log)
	wsHub := handlers.NewWSHub(cfg.DeskAPIToken, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, dealHandler, walletHandler, sessionHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	addr := fmt.Sprintf(":%s", cfg.DeskPort)
	log.Info("starting desk server", zap.String("addr", addr), zap.String("market", cfg.MarketAPIURL))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

// connectTON reaches the network when a wallet seed is configured. Without
// it the desk still serves deals but deposits are disabled.
func connectTON(ctx context.Context, cfg *config.Config, lite ton.LiteConfig, formatter ton.Formatter, journal *repositories.JournalRepo, log *zap.Logger) (*ton.Connector, *escrow.Flow) {
	if cfg.TONWalletSeed == "" {
		return ton.NewConnector(nil, "", cfg.TONWalletVersion, lite, log), nil
	}

	api, err := ton.Connect(ctx, lite, log)
	if err != nil {
		log.Error("TON connection failed, deposits disabled", zap.Error(err))
		return ton.NewConnector(nil, "", cfg.TONWalletVersion, lite, log), nil
	}

	connector := ton.NewConnector(api, cfg.TONWalletSeed, cfg.TONWalletVersion, lite, log)
	var rec escrow.Recorder
	if journal != nil {
		rec = journal
	}
	return connector, escrow.NewFlow(connector, formatter, cfg.DepositValidFor, rec, log)
}
