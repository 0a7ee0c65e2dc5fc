package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DEAL_POLL_INTERVAL_MS", "DEPOSIT_WINDOW_MINUTES", "DEPOSIT_VALID_FOR_SECONDS", "JWT_REFRESH_BUFFER_SECONDS", "DEAL_ID", "DESK_PORT"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	if cfg.DealPollInterval != 3*time.Second {
		t.Errorf("poll interval = %s", cfg.DealPollInterval)
	}
	if cfg.DepositWindow != time.Hour {
		t.Errorf("deposit window = %s", cfg.DepositWindow)
	}
	if cfg.DepositValidFor != 5*time.Minute {
		t.Errorf("deposit valid for = %s", cfg.DepositValidFor)
	}
	if cfg.JWTRefreshBuffer != time.Minute {
		t.Errorf("refresh buffer = %s", cfg.JWTRefreshBuffer)
	}
	if cfg.DealID != 0 || cfg.DeskPort != "3100" {
		t.Errorf("deal id = %d port = %s", cfg.DealID, cfg.DeskPort)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DEAL_POLL_INTERVAL_MS", "500")
	t.Setenv("DEAL_ID", " 42 ")
	t.Setenv("LITE_SERVER_PORT", "not-a-number")
	t.Setenv("TG_INIT_DATA", "  query_id=1  ")

	cfg := Load()
	if cfg.DealPollInterval != 500*time.Millisecond {
		t.Errorf("poll interval = %s", cfg.DealPollInterval)
	}
	if cfg.DealID != 42 {
		t.Errorf("deal id = %d", cfg.DealID)
	}
	if cfg.LiteServerPort != 4443 {
		t.Errorf("bad int should fall back, got %d", cfg.LiteServerPort)
	}
	if cfg.TelegramInitData != "query_id=1" {
		t.Errorf("init data = %q", cfg.TelegramInitData)
	}
}
