package handlers

import (
	"context"
	"strconv"

	"github.com/ads-marketplace/dealdesk/internal/dealsync"
	"github.com/ads-marketplace/dealdesk/internal/desk"
	"github.com/ads-marketplace/dealdesk/internal/http/dto"
	"github.com/ads-marketplace/dealdesk/internal/models"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// JournalReader lists the local action journal of a deal.
type JournalReader interface {
	ListByDeal(ctx context.Context, dealID int64, limit, offset int) ([]models.JournalEntry, error)
}

type DealHandler struct {
	desk    *desk.Desk
	journal JournalReader
	log     *zap.Logger
}

func NewDealHandler(d *desk.Desk, journal JournalReader, log *zap.Logger) *DealHandler {
	return &DealHandler{desk: d, journal: journal, log: log}
}

func dealID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	return id, err == nil && id > 0
}

// GetDeal GET /deals/:id
func (h *DealHandler) GetDeal(c *fiber.Ctx) error {
	id, ok := dealID(c)
	if !ok {
		return badRequest(c, "invalid deal id")
	}
	v, err := h.desk.View(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: v})
}

// ListWatched GET /deals
func (h *DealHandler) ListWatched(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.desk.Watched()})
}

// StopWatch DELETE /deals/:id/watch
func (h *DealHandler) StopWatch(c *fiber.Ctx) error {
	id, ok := dealID(c)
	if !ok {
		return badRequest(c, "invalid deal id")
	}
	if !h.desk.Close(id) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "deal is not watched"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// CreateDeal POST /deals
func (h *DealHandler) CreateDeal(c *fiber.Ctx) error {
	var req dto.CreateDealRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	deal, err := h.desk.CreateDeal(c.Context(), models.CreateDealRequest{
		ListingID: req.ListingID,
		ChannelID: req.ChannelID,
		Type:      req.Type,
		Duration:  req.Duration,
		Price:     req.Price,
		Details:   models.DealDetails{Message: req.Message, PostedAt: req.PostedAt},
	})
	if err != nil {
		return writeError(c, err)
	}
	h.log.Info("deal created", zap.Int64("deal_id", deal.ID), zap.Int64("listing_id", deal.ListingID))
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: deal})
}

// UpdateEditor PATCH /deals/:id/draft/editor
func (h *DealHandler) UpdateEditor(c *fiber.Ctx) error {
	id, ok := dealID(c)
	if !ok {
		return badRequest(c, "invalid deal id")
	}
	var req dto.EditorRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	v, err := h.desk.UpdateEditor(c.Context(), id, dealsync.EditorPatch{
		Message:    req.Message,
		PostedAt:   req.PostedAt,
		PriceIndex: req.PriceIndex,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: v})
}

// SaveDraft POST /deals/:id/draft/save
func (h *DealHandler) SaveDraft(c *fiber.Ctx) error {
	return h.action(c, h.desk.SaveDraft)
}

// Sign POST /deals/:id/sign
func (h *DealHandler) Sign(c *fiber.Ctx) error {
	return h.action(c, h.desk.Sign)
}

// Reject POST /deals/:id/reject
// Body {"confirm": true} is required, the deal cannot be restored afterwards.
func (h *DealHandler) Reject(c *fiber.Ctx) error {
	var req dto.RejectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request")
		}
	}
	return h.action(c, func(ctx context.Context, id int64) (desk.View, error) {
		return h.desk.Reject(ctx, id, req.Confirm)
	})
}

func (h *DealHandler) action(c *fiber.Ctx, fn func(ctx context.Context, id int64) (desk.View, error)) error {
	id, ok := dealID(c)
	if !ok {
		return badRequest(c, "invalid deal id")
	}
	v, err := fn(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: v})
}

// Deposit POST /deals/:id/deposit
func (h *DealHandler) Deposit(c *fiber.Ctx) error {
	id, ok := dealID(c)
	if !ok {
		return badRequest(c, "invalid deal id")
	}
	attempt, err := h.desk.Deposit(c.Context(), id)
	if err != nil {
		// ошибка кошелька отдаётся как есть
		if attempt.Error != nil {
			return c.Status(fiber.StatusBadGateway).JSON(dto.SuccessResponse{OK: false, Data: attempt})
		}
		return writeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: attempt})
}

// ChatLink POST /deals/:id/chat-link
func (h *DealHandler) ChatLink(c *fiber.Ctx) error {
	id, ok := dealID(c)
	if !ok {
		return badRequest(c, "invalid deal id")
	}
	link, err := h.desk.ChatLink(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ChatLinkResponse{ChatLink: link}})
}

// Journal GET /deals/:id/journal?limit=&offset=
func (h *DealHandler) Journal(c *fiber.Ctx) error {
	id, ok := dealID(c)
	if !ok {
		return badRequest(c, "invalid deal id")
	}
	if h.journal == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "journal is disabled"})
	}
	entries, err := h.journal.ListByDeal(c.Context(), id, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		h.log.Error("journal read failed", zap.Int64("deal_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
