package handlers

import (
	"time"

	"github.com/ads-marketplace/dealdesk/internal/auth"
	"github.com/ads-marketplace/dealdesk/internal/dealstate"
	"github.com/ads-marketplace/dealdesk/internal/desk"
	"github.com/ads-marketplace/dealdesk/internal/http/dto"
	"github.com/ads-marketplace/dealdesk/internal/models"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type SessionHandler struct {
	session *auth.Session
	desk    *desk.Desk
	log     *zap.Logger
}

func NewSessionHandler(session *auth.Session, d *desk.Desk, log *zap.Logger) *SessionHandler {
	return &SessionHandler{session: session, desk: d, log: log}
}

// GetSession GET /session
// Показывает, от чьего имени работает desk, и состояние market JWT.
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	resp := dto.SessionResponse{WatchedDealID: h.desk.Watched()}

	initData := h.session.InitData()
	if u := auth.ParseInitDataUser(initData); u != nil {
		resp.User = u
	}
	if age, err := auth.InitDataAge(initData, time.Now()); err == nil {
		resp.InitDataAge = age.Round(time.Second).String()
	}

	token, err := h.session.EnsureValid(c.Context())
	if err != nil {
		h.log.Debug("session token unavailable", zap.Error(err))
	} else if exp, ok := auth.TokenExpiry(token); ok {
		resp.TokenValid = true
		resp.TokenExpires = &exp
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: resp})
}

// RefreshSession POST /session/refresh
func (h *SessionHandler) RefreshSession(c *fiber.Ctx) error {
	h.session.Invalidate(c.Context())
	if _, err := h.session.EnsureValid(c.Context()); err != nil {
		return writeError(c, err)
	}
	return h.GetSession(c)
}

// Statuses GET /meta/statuses
func Statuses(c *fiber.Ctx) error {
	out := make([]dto.StatusInfo, 0, len(models.AllDealStatuses))
	for _, s := range models.AllDealStatuses {
		out = append(out, dto.StatusInfo{
			Status:   string(s),
			Label:    s.Label(),
			Terminal: s.IsTerminal(),
			Roadmap:  dealstate.Roadmap(s),
		})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}
