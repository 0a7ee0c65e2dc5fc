// Package auth keeps the market session: the Telegram launch data, the JWT
// exchanged for it and the refresh policy.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrNoInitData means there is nothing to exchange for a token: the desk was
// started outside Telegram without TG_INIT_DATA.
var ErrNoInitData = errors.New("telegram init data is not available")

// DefaultRefreshBuffer: за сколько до exp токен считается просроченным.
const DefaultRefreshBuffer = 60 * time.Second

// Exchanger trades launch data for a market JWT.
type Exchanger func(ctx context.Context, initData string) (string, error)

type Session struct {
	initData string
	exchange Exchanger
	store    TokenStore
	buffer   time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu sync.Mutex
}

func NewSession(initData string, exchange Exchanger, store TokenStore, buffer time.Duration, log *zap.Logger) *Session {
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Session{
		initData: initData,
		exchange: exchange,
		store:    store,
		buffer:   buffer,
		log:      log,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (s *Session) SetClock(now func() time.Time) {
	s.now = now
}

// InitData returns the launch data the session exchanges.
func (s *Session) InitData() string {
	return s.initData
}

// TokenExpiry reads the exp claim without verifying the signature; the
// market backend is the one that verifies it.
func TokenExpiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// EnsureValid returns a token that will not expire within the refresh
// buffer, exchanging the launch data again when needed. A token without exp
// is treated as stale.
func (s *Session) EnsureValid(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.store.Load(ctx)
	if err != nil {
		s.log.Warn("token store load failed", zap.Error(err))
		token = ""
	}
	if token != "" {
		if exp, ok := TokenExpiry(token); ok && s.now().Add(s.buffer).Before(exp) {
			return token, nil
		}
	}

	if s.initData == "" {
		return "", ErrNoInitData
	}

	fresh, err := s.exchange(ctx, s.initData)
	if err != nil {
		return "", fmt.Errorf("exchange init data: %w", err)
	}
	if fresh == "" {
		return "", fmt.Errorf("exchange init data: empty token")
	}

	exp, _ := TokenExpiry(fresh)
	if err := s.store.Save(ctx, fresh, exp); err != nil {
		s.log.Warn("token store save failed", zap.Error(err))
	}
	s.log.Debug("market token refreshed", zap.Time("expires_at", exp))
	return fresh, nil
}

// Token satisfies market.TokenSource.
func (s *Session) Token(ctx context.Context) (string, error) {
	return s.EnsureValid(ctx)
}

// Invalidate drops the stored token so the next call exchanges again.
func (s *Session) Invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Clear(ctx); err != nil {
		s.log.Warn("token store clear failed", zap.Error(err))
	}
}
