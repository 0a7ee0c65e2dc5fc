package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	// Market backend
	MarketAPIURL string
	HTTPTimeout  time.Duration

	// Telegram launch data (Mini App initData) used to obtain the market JWT
	TelegramInitData string
	BotToken         string        // только для локальной проверки initData
	InitDataMaxAge   time.Duration // макс. возраст auth_date из Telegram initData
	JWTRefreshBuffer time.Duration

	// Optional infrastructure; empty disables it
	PostgresDSN   string
	RedisURL      string
	MigrationsDir string

	// TON
	TONNetwork       string // mainnet/testnet
	LiteServerHost   string
	LiteServerPort   int
	LiteServerKey    string
	TONWalletSeed    string
	TONWalletVersion string

	// Deal screen
	DealPollInterval time.Duration
	DepositWindow    time.Duration
	DepositValidFor  time.Duration
	WatchIdleTimeout time.Duration

	// Channel preview
	TMEFetchTimeoutMS  int
	TMEFetchMaxRetries int

	// Server
	DeskPort           string
	DeskAPIToken       string
	CORSAllowOrigins   string
	RateLimitPerMinute int

	// Watcher
	DealID int64
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		MarketAPIURL: getEnv("MARKET_API_URL", "http://localhost:3000"),
		HTTPTimeout:  time.Duration(getEnvInt("HTTP_TIMEOUT_MS", 15000)) * time.Millisecond,

		TelegramInitData: strings.TrimSpace(getEnv("TG_INIT_DATA", "")),
		BotToken:         getEnv("BOT_TOKEN", ""),
		InitDataMaxAge:   time.Duration(getEnvInt("INIT_DATA_MAX_AGE_SECONDS", 300)) * time.Second, // 5 мин по умолчанию
		JWTRefreshBuffer: time.Duration(getEnvInt("JWT_REFRESH_BUFFER_SECONDS", 60)) * time.Second,

		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),

		TONNetwork:       getEnv("TON_NETWORK", "testnet"),
		LiteServerHost:   getEnv("LITE_SERVER_HOST", ""),
		LiteServerPort:   getEnvInt("LITE_SERVER_PORT", 4443),
		LiteServerKey:    getEnv("LITE_SERVER_KEY", ""),
		TONWalletSeed:    getEnv("TON_WALLET_SEED", ""),
		TONWalletVersion: getEnv("TON_WALLET_VERSION", "v4r2"),

		DealPollInterval: time.Duration(getEnvInt("DEAL_POLL_INTERVAL_MS", 3000)) * time.Millisecond,
		DepositWindow:    time.Duration(getEnvInt("DEPOSIT_WINDOW_MINUTES", 60)) * time.Minute,
		DepositValidFor:  time.Duration(getEnvInt("DEPOSIT_VALID_FOR_SECONDS", 300)) * time.Second,
		WatchIdleTimeout: time.Duration(getEnvInt("WATCH_IDLE_MINUTES", 10)) * time.Minute,

		TMEFetchTimeoutMS:  getEnvInt("TME_FETCH_TIMEOUT_MS", 10000),
		TMEFetchMaxRetries: getEnvInt("TME_FETCH_MAX_RETRIES", 3),

		DeskPort:           getEnv("DESK_PORT", "3100"),
		DeskAPIToken:       getEnv("DESK_API_TOKEN", ""),
		CORSAllowOrigins:   getEnv("CORS_ALLOW_ORIGINS", "*"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		DealID: getEnvInt64("DEAL_ID", 0),
	}

	return cfg
}

func (c *Config) Validate(log *zap.Logger) {
	if c.TelegramInitData == "" {
		log.Warn("TG_INIT_DATA is not set, market calls will fail to authenticate")
	}
	if c.DeskAPIToken == "" {
		log.Warn("DESK_API_TOKEN is not set, desk API is open to anyone who can reach it")
	}
	if c.TONWalletSeed == "" {
		log.Warn("TON_WALLET_SEED is not set, escrow deposits are disabled")
	}
	if c.PostgresDSN == "" {
		log.Info("POSTGRES_DSN is not set, action journal is disabled")
	}
	if c.RedisURL == "" {
		log.Info("REDIS_URL is not set, using in-process token store and event bus")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvInt64(key string, fallback int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
