package handlers

import (
	"errors"
	"net/http"

	"github.com/ads-marketplace/dealdesk/internal/auth"
	"github.com/ads-marketplace/dealdesk/internal/dealsync"
	"github.com/ads-marketplace/dealdesk/internal/desk"
	"github.com/ads-marketplace/dealdesk/internal/escrow"
	"github.com/ads-marketplace/dealdesk/internal/http/dto"
	"github.com/ads-marketplace/dealdesk/internal/market"
	"github.com/ads-marketplace/dealdesk/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

// errorStatus maps domain errors onto HTTP statuses. Anything unknown is
// treated as a failure of the remote side.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, desk.ErrBadDealID), errors.Is(err, desk.ErrBadListingID),
		errors.Is(err, dealsync.ErrRejectNotConfirmed):
		return fiber.StatusBadRequest
	case errors.Is(err, dealsync.ErrInvalidPostedAt), errors.Is(err, dealsync.ErrBadPriceIndex),
		errors.Is(err, desk.ErrNoPrices):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, dealsync.ErrNotAllowed), errors.Is(err, escrow.ErrWalletMismatch):
		return fiber.StatusForbidden
	case errors.Is(err, dealsync.ErrBusy), errors.Is(err, escrow.ErrInFlight),
		errors.Is(err, escrow.ErrNotReady), errors.Is(err, escrow.ErrNoWallet):
		return fiber.StatusConflict
	case errors.Is(err, dealsync.ErrNoDeal):
		return fiber.StatusNotFound
	case errors.Is(err, desk.ErrDepositsDisabled):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, auth.ErrNoInitData):
		return fiber.StatusUnauthorized
	}

	var apiErr *market.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusNotFound:
			return fiber.StatusNotFound
		case http.StatusForbidden:
			return fiber.StatusForbidden
		case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
			return apiErr.Status
		}
	}
	return fiber.StatusBadGateway
}

func writeError(c *fiber.Ctx, err error) error {
	resp := dto.ErrorResponse{Error: err.Error(), RequestID: middleware.GetRequestID(c)}
	var apiErr *market.APIError
	if errors.As(err, &apiErr) {
		resp.Code = apiErr.Code
	}
	return c.Status(errorStatus(err)).JSON(resp)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}
