// Package market talks to the marketplace REST backend (/api/v1/market).
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/metrics"
	"github.com/ads-marketplace/dealdesk/internal/models"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1/market"

// TokenSource hands out a bearer token for authenticated calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// invalidator is implemented by token sources that can drop a rejected token.
type invalidator interface {
	Invalidate(ctx context.Context)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	log        *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// SetTokenSource wires the session after construction; the session itself
// needs Auth to exchange tokens.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// Auth exchanges Telegram launch data for a JWT. referrer is optional.
func (c *Client) Auth(ctx context.Context, initData string, referrer *int64) (string, error) {
	body, _ := json.Marshal(map[string]any{"referrer": referrer})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+"/auth", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if initData != "" {
		req.Header.Set("X-Telegram-InitData", initData)
	}

	var token string
	if err := c.send(req, "auth_failed", &token); err != nil {
		return "", err
	}
	return token, nil
}

func (c *Client) GetDeal(ctx context.Context, id int64) (*models.Deal, error) {
	var deal models.Deal
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/deals/%d", id), nil, &deal); err != nil {
		return nil, err
	}
	return &deal, nil
}

func (c *Client) UpdateDealDraft(ctx context.Context, id int64, upd models.DealDraftUpdate) (*models.Deal, error) {
	var deal models.Deal
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/deals/%d", id), upd, &deal); err != nil {
		return nil, err
	}
	return &deal, nil
}

func (c *Client) SignDeal(ctx context.Context, id int64) (*models.Deal, error) {
	var deal models.Deal
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/deals/%d/sign", id), nil, &deal); err != nil {
		return nil, err
	}
	return &deal, nil
}

func (c *Client) RejectDeal(ctx context.Context, id int64) (*models.Deal, error) {
	var deal models.Deal
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/deals/%d/reject", id), nil, &deal); err != nil {
		return nil, err
	}
	return &deal, nil
}

func (c *Client) SetDealPayoutAddress(ctx context.Context, id int64, walletAddress string) (*models.Deal, error) {
	var deal models.Deal
	body := models.WalletAddressRequest{WalletAddress: walletAddress}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/deals/%d/payout-address", id), body, &deal); err != nil {
		return nil, err
	}
	return &deal, nil
}

func (c *Client) CreateDeal(ctx context.Context, in models.CreateDealRequest) (*models.Deal, error) {
	var deal models.Deal
	if err := c.do(ctx, http.MethodPost, "/deals", in, &deal); err != nil {
		return nil, err
	}
	return &deal, nil
}

func (c *Client) ChatLink(ctx context.Context, id int64) (string, error) {
	var link models.ChatLink
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/deals/%d/chat-link", id), nil, &link); err != nil {
		return "", err
	}
	if link.ChatLink == "" {
		return "", &APIError{Status: http.StatusOK, Code: "Could not open chat"}
	}
	return link.ChatLink, nil
}

func (c *Client) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	var listing models.Listing
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/listings/%d", id), nil, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// SetWallet registers the connected wallet (raw form) for the current user.
func (c *Client) SetWallet(ctx context.Context, rawAddress string) error {
	return c.do(ctx, http.MethodPut, "/me/wallet", models.WalletAddressRequest{WalletAddress: rawAddress}, nil)
}

func (c *Client) ClearWallet(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/me/wallet", nil, nil)
}

// do sends an authenticated JSON request and unwraps the {ok, data, error_code}
// envelope into out (nil to ignore data).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	err = c.send(req, "request_failed", out)
	if IsUnauthorized(err) {
		if inv, ok := c.tokens.(invalidator); ok {
			inv.Invalidate(ctx)
		}
	}
	return err
}

func (c *Client) send(req *http.Request, fallbackCode string, out any) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveMarketCall(req.Method, start, err) }()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("market request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	var env models.Envelope[json.RawMessage]
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := env.ErrorCode
		if decodeErr != nil || code == "" {
			code = fallbackCode
		}
		return &APIError{Status: resp.StatusCode, Code: code}
	}
	if decodeErr != nil {
		return &APIError{Status: resp.StatusCode, Code: fallbackCode}
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = fallbackCode
		}
		return &APIError{Status: resp.StatusCode, Code: code}
	}

	if out == nil {
		return nil
	}
	if env.Data == nil || len(*env.Data) == 0 || string(*env.Data) == "null" {
		return &APIError{Status: resp.StatusCode, Code: fallbackCode}
	}
	if err := json.Unmarshal(*env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
