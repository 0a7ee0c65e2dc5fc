package market

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/models"
	"go.uber.org/zap"
)

type staticTokens struct {
	token       string
	invalidated int
}

func (s *staticTokens) Token(context.Context) (string, error) { return s.token, nil }
func (s *staticTokens) Invalidate(context.Context)            { s.invalidated++ }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *staticTokens) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL+"/", time.Second, zap.NewNop())
	tokens := &staticTokens{token: "jwt-1"}
	c.SetTokenSource(tokens)
	return c, tokens
}

func TestAuth(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/market/auth" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Telegram-InitData") != "query_id=1" {
			t.Errorf("init data header = %q", r.Header.Get("X-Telegram-InitData"))
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("auth must not send a bearer token")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"referrer":null}` {
			t.Errorf("body = %s", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": "token-abc"})
	})

	token, err := c.Auth(context.Background(), "query_id=1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "token-abc" {
		t.Errorf("token = %q", token)
	}
}

func TestAuthFailure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("nope"))
	})

	_, err := c.Auth(context.Background(), "x", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Code != "auth_failed" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestGetDeal(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/market/deals/42" || r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer jwt-1" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte(`{"ok":true,"data":{"id":42,"lessor_id":1,"lessee_id":2,"status":"draft","price":100,"duration":24,
			"escrow_amount":1000000000,"details":{"message":"hi","posted_at":"2026-03-01T10:00:00Z","extra":1}}}`))
	})

	deal, err := c.GetDeal(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if deal.ID != 42 || deal.Status != models.DealStatusDraft || deal.Message() != "hi" {
		t.Errorf("deal = %+v", deal)
	}
	if !deal.HasEscrowAmount() || deal.PostedAt() != "2026-03-01T10:00:00Z" {
		t.Errorf("escrow/posted_at not decoded: %+v", deal)
	}
}

func TestErrorEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"error code", http.StatusBadRequest, `{"ok":false,"error_code":"payout_addresses_required"}`, "payout_addresses_required"},
		{"no code", http.StatusInternalServerError, `{}`, "request_failed"},
		{"not json", http.StatusBadGateway, `<html>`, "request_failed"},
		{"ok false with 200", http.StatusOK, `{"ok":false,"error_code":"not_party"}`, "not_party"},
		{"missing data", http.StatusOK, `{"ok":true}`, "request_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.SignDeal(context.Background(), 1)
			if got := ErrorCode(err); got != tt.code {
				t.Errorf("ErrorCode = %q, want %q (err %v)", got, tt.code, err)
			}
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, zap.NewNop())
	_, err := c.GetDeal(context.Background(), 1)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if ErrorCode(err) != "network error" {
		t.Errorf("ErrorCode = %q", ErrorCode(err))
	}
}

func TestUnauthorizedInvalidatesToken(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error_code": "unauthorized"})
	})
	_, err := c.GetDeal(context.Background(), 1)
	if !IsUnauthorized(err) {
		t.Fatalf("err = %v", err)
	}
	if tokens.invalidated != 1 {
		t.Errorf("invalidated = %d, want 1", tokens.invalidated)
	}
}

func TestMutationsSendBodies(t *testing.T) {
	type seen struct {
		method, path string
		body         map[string]any
	}
	var got []seen
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = append(got, seen{r.Method, r.URL.Path, body})
		switch r.URL.Path {
		case "/api/v1/market/me/wallet":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": map[string]string{"status": "ok"}})
		case "/api/v1/market/deals/5/chat-link":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": map[string]string{"chat_link": "https://t.me/+abc"}})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": map[string]any{"id": 5, "status": "draft"}})
		}
	})
	ctx := context.Background()

	msg := "hello"
	if _, err := c.UpdateDealDraft(ctx, 5, models.DealDraftUpdate{Type: "24hr", Duration: 24, Price: 10, Details: models.DealDetails{Message: &msg}}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SetDealPayoutAddress(ctx, 5, "0:ab"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetWallet(ctx, "0:ab"); err != nil {
		t.Fatal(err)
	}
	if err := c.ClearWallet(ctx); err != nil {
		t.Fatal(err)
	}
	link, err := c.ChatLink(ctx, 5)
	if err != nil || link != "https://t.me/+abc" {
		t.Fatalf("ChatLink = %q, %v", link, err)
	}
	if _, err := c.CreateDeal(ctx, models.CreateDealRequest{ListingID: 9, Type: "24hr", Duration: 24, Price: 10}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.RejectDeal(ctx, 5); err != nil {
		t.Fatal(err)
	}

	want := []struct{ method, path string }{
		{http.MethodPatch, "/api/v1/market/deals/5"},
		{http.MethodPut, "/api/v1/market/deals/5/payout-address"},
		{http.MethodPut, "/api/v1/market/me/wallet"},
		{http.MethodDelete, "/api/v1/market/me/wallet"},
		{http.MethodPost, "/api/v1/market/deals/5/chat-link"},
		{http.MethodPost, "/api/v1/market/deals"},
		{http.MethodPost, "/api/v1/market/deals/5/reject"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d requests, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].method != w.method || got[i].path != w.path {
			t.Errorf("request %d = %s %s, want %s %s", i, got[i].method, got[i].path, w.method, w.path)
		}
	}
	if got[0].body["type"] != "24hr" || got[0].body["details"].(map[string]any)["message"] != "hello" {
		t.Errorf("patch body = %v", got[0].body)
	}
	if got[1].body["wallet_address"] != "0:ab" {
		t.Errorf("payout body = %v", got[1].body)
	}
	if got[5].body["listing_id"] != float64(9) {
		t.Errorf("create body = %v", got[5].body)
	}
}

func TestGetListing(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"data":{"id":3,"type":"lessor","status":"active","prices":[["24hr",100]]}}`))
	})
	l, err := c.GetListing(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if l.ID != 3 || string(l.Prices) != `[["24hr",100]]` {
		t.Errorf("listing = %+v", l)
	}
}
