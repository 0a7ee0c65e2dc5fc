// Command dealwatch polls a single deal (DEAL_ID) without the HTTP desk and
// republishes its status changes to redis for other processes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/auth"
	"github.com/ads-marketplace/dealdesk/internal/config"
	"github.com/ads-marketplace/dealdesk/internal/db"
	"github.com/ads-marketplace/dealdesk/internal/dealstate"
	"github.com/ads-marketplace/dealdesk/internal/dealsync"
	"github.com/ads-marketplace/dealdesk/internal/events"
	"github.com/ads-marketplace/dealdesk/internal/market"
	"github.com/ads-marketplace/dealdesk/internal/models"
	"github.com/ads-marketplace/dealdesk/internal/repositories"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.DealID <= 0 {
		log.Fatal("DEAL_ID is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initData := auth.DecodeInitData(cfg.TelegramInitData)
	var viewerID int64
	if u := auth.ParseInitDataUser(initData); u != nil {
		viewerID = u.ID
	}

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}

	var (
		publisher  events.Publisher
		tokenStore auth.TokenStore = auth.NewMemoryStore()
	)
	if rdb != nil {
		defer rdb.Close()
		publisher = events.NewRedisPublisher(rdb, log)
		tokenStore = auth.NewRedisStore(rdb, viewerID)
	}

	client := market.NewClient(cfg.MarketAPIURL, cfg.HTTPTimeout, log)
	session := auth.NewSession(initData, func(ctx context.Context, initData string) (string, error) {
		return client.Auth(ctx, initData, nil)
	}, tokenStore, cfg.JWTRefreshBuffer, log)
	client.SetTokenSource(session)

	opts := dealsync.Options{
		PollInterval: cfg.DealPollInterval,
		Location:     time.Local,
		Rules:        dealstate.Rules{DepositWindow: cfg.DepositWindow},
		OnStatusChange: func(dealID int64, from, to models.DealStatus) {
			log.Info("deal status changed",
				zap.Int64("deal_id", dealID),
				zap.String("from", string(from)),
				zap.String("to", string(to)),
			)
			if publisher == nil {
				return
			}
			event := events.Event{
				Type:    events.EventDealStatusChanged,
				DealID:  dealID,
				Payload: map[string]any{"from": from, "to": to},
			}
			if err := publisher.Publish(context.Background(), events.DealChannel, event); err != nil {
				log.Warn("event publish failed", zap.Error(err))
			}
		},
	}
	if pool != nil {
		defer pool.Close()
		if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		opts.Journal = repositories.NewJournalRepo(pool)
	}

	ctrl := dealsync.New(client, viewerID, opts, log)
	ctrl.Switch(cfg.DealID)

	log.Info("dealwatch started", zap.Int64("deal_id", cfg.DealID), zap.Duration("interval", cfg.DealPollInterval))
	go ctrl.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	st := ctrl.State()
	if st.Deal != nil {
		log.Info("shutting down dealwatch", zap.String("last_status", string(st.Deal.Status)))
	} else {
		log.Info("shutting down dealwatch", zap.String("last_error", st.Error))
	}
}
