package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/models"
)

const (
	// DefaultInitDataTTL: максимальный возраст auth_date, который ещё примет бэкенд.
	DefaultInitDataTTL = 5 * time.Minute
)

// DecodeInitData normalizes launch data pasted from a URL fragment
// (#tgWebAppData=...): it is percent-decoded once. Undecodable input is
// returned trimmed but otherwise as-is.
func DecodeInitData(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "%") {
		return raw
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ParseInitDataUser returns the user= object of initData, or nil when it is
// missing or has no numeric id.
func ParseInitDataUser(initData string) *models.TelegramUser {
	if strings.TrimSpace(initData) == "" {
		return nil
	}
	vals, err := url.ParseQuery(initData)
	if err != nil {
		return nil
	}
	raw := vals.Get("user")
	if raw == "" {
		return nil
	}
	var head struct {
		ID *json.Number `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &head); err != nil || head.ID == nil {
		return nil
	}
	if _, err := head.ID.Int64(); err != nil {
		return nil
	}
	var user models.TelegramUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil
	}
	return &user
}

// InitDataAge reports how old auth_date is. The backend refuses stale launch
// data, so the desk warns about it at startup.
func InitDataAge(initData string, now time.Time) (time.Duration, error) {
	vals, err := url.ParseQuery(initData)
	if err != nil {
		return 0, fmt.Errorf("invalid initData format: %w", err)
	}
	authDateStr := vals.Get("auth_date")
	if authDateStr == "" {
		return 0, fmt.Errorf("auth_date is missing from initData")
	}
	authDateUnix, err := strconv.ParseInt(authDateStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("auth_date is not a valid unix timestamp")
	}
	return now.Sub(time.Unix(authDateUnix, 0)), nil
}

// VerifyInitData checks the launch data signature the same way the backend
// does. Only possible when the bot token is known (local development).
// https://core.telegram.org/bots/webapps#validating-data-received-via-the-mini-app
//
// maxAge: максимально допустимый возраст auth_date. Если <= 0, используется DefaultInitDataTTL.
func VerifyInitData(initData string, botToken string, maxAge time.Duration) (url.Values, error) {
	if maxAge <= 0 {
		maxAge = DefaultInitDataTTL
	}

	vals, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("invalid initData format: %w", err)
	}

	receivedHash := vals.Get("hash")
	if receivedHash == "" {
		return nil, fmt.Errorf("hash is missing from initData")
	}

	age, err := InitDataAge(initData, time.Now())
	if err != nil {
		return nil, err
	}
	if age > maxAge {
		return nil, fmt.Errorf("initData expired: auth_date is %s old (max %s)", age.Round(time.Second), maxAge)
	}
	// clock skew макс. 1 мин
	if age < -time.Minute {
		return nil, fmt.Errorf("auth_date is in the future")
	}

	var pairs []string
	for key, values := range vals {
		if key == "hash" {
			continue
		}
		for _, v := range values {
			pairs = append(pairs, fmt.Sprintf("%s=%s", key, v))
		}
	}
	sort.Strings(pairs)
	dataCheckString := strings.Join(pairs, "\n")

	// secret_key = HMAC-SHA256("WebAppData", bot_token)
	secretKey := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	calculatedHash := hex.EncodeToString(hmacSHA256(secretKey, []byte(dataCheckString)))

	if !hmac.Equal([]byte(calculatedHash), []byte(receivedHash)) {
		return nil, fmt.Errorf("invalid hash: data integrity check failed")
	}

	return vals, nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
