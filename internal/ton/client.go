package ton

import (
	"context"
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/liteclient"
	tonapi "github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"
)

// LiteConfig selects how to reach the TON network.
type LiteConfig struct {
	Network string // mainnet/testnet
	Host    string
	Port    int
	Key     string
}

func (c LiteConfig) IsTestnet() bool {
	return !strings.EqualFold(c.Network, "mainnet")
}

// Connect establishes a connection to the TON network.
// If Host + Key are set, connects to a specific lite server.
// Otherwise, auto-discovers lite servers from the global TON config based on Network.
func Connect(ctx context.Context, cfg LiteConfig, log *zap.Logger) (tonapi.APIClientWrapped, error) {
	client := liteclient.NewConnectionPool()

	if cfg.Host != "" && cfg.Key != "" {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		log.Info("connecting to lite server", zap.String("addr", addr))
		if err := client.AddConnection(ctx, addr, cfg.Key); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		configURL := "https://ton.org/testnet-global.config.json"
		if !cfg.IsTestnet() {
			configURL = "https://ton.org/global.config.json"
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", cfg.Network))
		if err := client.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := tonapi.ProofCheckPolicyFast
	if !cfg.IsTestnet() {
		proofPolicy = tonapi.ProofCheckPolicySecure
	}

	return tonapi.NewAPIClient(client, proofPolicy).WithRetry(), nil
}
