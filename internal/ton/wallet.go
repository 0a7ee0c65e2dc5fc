package ton

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/models"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	tonapi "github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"go.uber.org/zap"
)

var ErrNoWallet = errors.New("wallet is not connected")

// Transaction mirrors a TON Connect sendTransaction request.
type Transaction struct {
	ValidUntil int64     `json:"validUntil"` // unix seconds
	Messages   []Message `json:"messages"`
}

type Message struct {
	Address string `json:"address"` // user-friendly
	Amount  string `json:"amount"`  // nanoton, decimal string
}

var walletVersions = map[string]wallet.Version{
	"v3r2": wallet.V3R2,
	"v4r2": wallet.V4R2,
}

// Wallet signs and broadcasts transfers from a seed-derived wallet.
type Wallet struct {
	w           *wallet.Wallet
	version     string
	network     string
	fmt         Formatter
	connectedAt time.Time
	log         *zap.Logger
}

func OpenWallet(api tonapi.APIClientWrapped, seed, version string, cfg LiteConfig, log *zap.Logger) (*Wallet, error) {
	words := strings.Fields(seed)
	if len(words) == 0 {
		return nil, fmt.Errorf("wallet seed phrase is empty")
	}
	version = strings.ToLower(version)
	v, ok := walletVersions[version]
	if !ok {
		return nil, fmt.Errorf("unsupported wallet version %q", version)
	}

	w, err := wallet.FromSeed(api, words, v)
	if err != nil {
		return nil, fmt.Errorf("open wallet from seed: %w", err)
	}

	return &Wallet{
		w:           w,
		version:     version,
		network:     cfg.Network,
		fmt:         Formatter{Testnet: cfg.IsTestnet()},
		connectedAt: time.Now(),
		log:         log,
	}, nil
}

func (w *Wallet) RawAddress() string {
	return RawString(w.w.WalletAddress())
}

func (w *Wallet) Info() models.ConnectedWallet {
	raw := w.RawAddress()
	return models.ConnectedWallet{
		Address:         raw,
		AddressFriendly: w.fmt.ToFriendly(raw, false),
		Network:         w.network,
		Version:         w.version,
		ConnectedAt:     w.connectedAt,
	}
}

// SendTransaction submits every message in one external message and waits
// until the wallet transaction lands. Returns the transaction hash (hex).
func (w *Wallet) SendTransaction(ctx context.Context, tx Transaction) (string, error) {
	if len(tx.Messages) == 0 {
		return "", fmt.Errorf("transaction has no messages")
	}
	now := time.Now().Unix()
	if tx.ValidUntil <= now {
		return "", fmt.Errorf("transaction validity window has passed")
	}
	if spec, ok := w.w.GetSpec().(interface{ SetMessagesTTL(uint32) }); ok {
		spec.SetMessagesTTL(uint32(tx.ValidUntil - now))
	}

	msgs := make([]*wallet.Message, 0, len(tx.Messages))
	for i, m := range tx.Messages {
		dst, err := address.ParseAddr(m.Address)
		if err != nil {
			return "", fmt.Errorf("messages[%d]: invalid address: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(m.Amount, 10)
		if !ok || amount.Sign() <= 0 {
			return "", fmt.Errorf("messages[%d]: invalid amount %q", i, m.Amount)
		}
		msgs = append(msgs, &wallet.Message{
			Mode: wallet.PayGasSeparately + wallet.IgnoreErrors,
			InternalMessage: &tlb.InternalMessage{
				IHRDisabled: true,
				Bounce:      dst.IsBounceable(),
				DstAddr:     dst,
				Amount:      tlb.FromNanoTON(amount),
				Body:        cell.BeginCell().EndCell(),
			},
		})
	}

	sent, _, err := w.w.SendManyWaitTransaction(ctx, msgs)
	if err != nil {
		return "", err
	}
	hash := hex.EncodeToString(sent.Hash)
	w.log.Info("wallet transaction sent",
		zap.String("from", w.RawAddress()),
		zap.Int("messages", len(msgs)),
		zap.String("tx_hash", hash),
	)
	return hash, nil
}

// Connector holds the currently connected wallet, if any.
type Connector struct {
	api     tonapi.APIClientWrapped
	seed    string
	version string
	cfg     LiteConfig
	log     *zap.Logger

	mu      sync.RWMutex
	current *Wallet
}

func NewConnector(api tonapi.APIClientWrapped, seed, version string, cfg LiteConfig, log *zap.Logger) *Connector {
	return &Connector{api: api, seed: seed, version: version, cfg: cfg, log: log}
}

// Connect opens the configured wallet. Connecting twice is a no-op.
func (c *Connector) Connect() (*Wallet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current, nil
	}
	if c.api == nil {
		return nil, fmt.Errorf("TON network is not configured")
	}
	w, err := OpenWallet(c.api, c.seed, c.version, c.cfg, c.log)
	if err != nil {
		return nil, err
	}
	c.current = w
	c.log.Info("wallet connected", zap.String("address", w.RawAddress()))
	return w, nil
}

func (c *Connector) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.log.Info("wallet disconnected", zap.String("address", c.current.RawAddress()))
	}
	c.current = nil
}

// RawAddress returns the connected wallet's raw address or "".
func (c *Connector) RawAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return ""
	}
	return c.current.RawAddress()
}

func (c *Connector) Current() *Wallet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// SendTransaction routes tx through the connected wallet.
func (c *Connector) SendTransaction(ctx context.Context, tx Transaction) (string, error) {
	w := c.Current()
	if w == nil {
		return "", ErrNoWallet
	}
	return w.SendTransaction(ctx, tx)
}
