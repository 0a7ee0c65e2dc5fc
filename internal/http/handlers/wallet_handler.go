package handlers

import (
	"context"

	"github.com/ads-marketplace/dealdesk/internal/http/dto"
	"github.com/ads-marketplace/dealdesk/internal/models"
	"github.com/ads-marketplace/dealdesk/internal/ton"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WalletConnector opens and closes the signing wallet.
type WalletConnector interface {
	Connect() (*ton.Wallet, error)
	Disconnect()
	Current() *ton.Wallet
}

// WalletSink is told about wallet changes so watched deals can react.
type WalletSink interface {
	SetWallet(ctx context.Context, rawAddress string)
	DisconnectWallet(ctx context.Context) error
}

type WalletHandler struct {
	connector WalletConnector
	sink      WalletSink
	log       *zap.Logger
}

func NewWalletHandler(connector WalletConnector, sink WalletSink, log *zap.Logger) *WalletHandler {
	return &WalletHandler{connector: connector, sink: sink, log: log}
}

// GetWallet GET /wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	w := h.connector.Current()
	if w == nil {
		return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"connected": false}})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: walletInfo(w.Info())})
}

// ConnectWallet PUT /wallet
// Открывает кошелёк из seed-фразы и раздаёт адрес всем открытым сделкам.
func (h *WalletHandler) ConnectWallet(c *fiber.Ctx) error {
	w, err := h.connector.Connect()
	if err != nil {
		h.log.Warn("wallet connect failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	h.sink.SetWallet(c.Context(), w.RawAddress())
	return c.JSON(dto.SuccessResponse{OK: true, Data: walletInfo(w.Info())})
}

// DisconnectWallet DELETE /wallet
func (h *WalletHandler) DisconnectWallet(c *fiber.Ctx) error {
	h.connector.Disconnect()
	if err := h.sink.DisconnectWallet(c.Context()); err != nil {
		// локально кошелёк уже отключён
		h.log.Warn("wallet clear on server failed", zap.Error(err))
		return writeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func walletInfo(w models.ConnectedWallet) fiber.Map {
	return fiber.Map{
		"connected": true,
		"wallet":    w,
	}
}
