package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

func signToken(t *testing.T, exp *time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "42"}
	if exp != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*exp)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("market-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

type countingExchanger struct {
	calls  int
	tokens []string
	err    error
}

func (c *countingExchanger) exchange(_ context.Context, initData string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	if initData == "" {
		return "", errors.New("no init data")
	}
	return c.tokens[(c.calls-1)%len(c.tokens)], nil
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Unix(1_800_000_000, 0)
	got, ok := TokenExpiry(signToken(t, &exp))
	if !ok || !got.Equal(exp) {
		t.Errorf("TokenExpiry = %v, %v", got, ok)
	}

	if _, ok := TokenExpiry(signToken(t, nil)); ok {
		t.Error("token without exp should report no expiry")
	}
	if _, ok := TokenExpiry("not.a.jwt"); ok {
		t.Error("garbage token should report no expiry")
	}
}

func TestEnsureValidReusesFreshToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	exp := now.Add(10 * time.Minute)
	stored := signToken(t, &exp)

	store := NewMemoryStore()
	_ = store.Save(context.Background(), stored, exp)

	ex := &countingExchanger{tokens: []string{"unused"}}
	s := NewSession("auth_date=1", ex.exchange, store, time.Minute, zap.NewNop())
	s.SetClock(func() time.Time { return now })

	token, err := s.EnsureValid(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token != stored {
		t.Error("fresh token was not reused")
	}
	if ex.calls != 0 {
		t.Errorf("exchange called %d times, want 0", ex.calls)
	}
}

func TestEnsureValidRefreshesInsideBuffer(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	almost := now.Add(30 * time.Second)
	later := now.Add(time.Hour)
	fresh := signToken(t, &later)

	tests := []struct {
		name   string
		stored string
	}{
		{"expires within buffer", signToken(t, &almost)},
		{"no exp claim", signToken(t, nil)},
		{"garbage", "garbage"},
		{"empty store", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			_ = store.Save(context.Background(), tt.stored, time.Time{})

			ex := &countingExchanger{tokens: []string{fresh}}
			s := NewSession("auth_date=1", ex.exchange, store, time.Minute, zap.NewNop())
			s.SetClock(func() time.Time { return now })

			token, err := s.EnsureValid(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if token != fresh || ex.calls != 1 {
				t.Errorf("token refreshed=%v calls=%d", token == fresh, ex.calls)
			}
			if saved, _ := store.Load(context.Background()); saved != fresh {
				t.Error("fresh token was not written back")
			}
		})
	}
}

func TestEnsureValidWithoutInitData(t *testing.T) {
	ex := &countingExchanger{tokens: []string{"x"}}
	s := NewSession("", ex.exchange, nil, 0, zap.NewNop())
	_, err := s.EnsureValid(context.Background())
	if !errors.Is(err, ErrNoInitData) {
		t.Errorf("err = %v, want ErrNoInitData", err)
	}
	if ex.calls != 0 {
		t.Error("exchange must not be called without init data")
	}
}

func TestEnsureValidExchangeError(t *testing.T) {
	boom := errors.New("auth_failed")
	ex := &countingExchanger{err: boom}
	s := NewSession("auth_date=1", ex.exchange, nil, 0, zap.NewNop())
	_, err := s.EnsureValid(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped auth_failed", err)
	}
}

func TestInvalidate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	exp := now.Add(time.Hour)
	first := signToken(t, &exp)
	exp2 := now.Add(2 * time.Hour)
	second := signToken(t, &exp2)

	ex := &countingExchanger{tokens: []string{first, second}}
	s := NewSession("auth_date=1", ex.exchange, nil, 0, zap.NewNop())
	s.SetClock(func() time.Time { return now })

	if tok, _ := s.Token(context.Background()); tok != first {
		t.Fatal("expected first token")
	}
	s.Invalidate(context.Background())
	if tok, _ := s.Token(context.Background()); tok != second {
		t.Fatal("expected a new token after invalidate")
	}
	if ex.calls != 2 {
		t.Errorf("calls = %d, want 2", ex.calls)
	}
}
