package momo

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/payflow-sz/payflow/internal/ledger"
	"github.com/payflow-sz/payflow/internal/limits"
)

// Handler exposes the mobile-money top-up endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a mobile-money handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type topUpRequest struct {
	AccountID      string `json:"account_id"`
	PhoneNumber    string `json:"phone_number"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

// TopUp collects funds via mobile money and credits the account.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	res, err := h.service.TopUp(c.UserContext(), TopUpInput{
		AccountID:      req.AccountID,
		PhoneNumber:    req.PhoneNumber,
		Amount:         amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidPhone):
		return fiber.NewError(http.StatusBadRequest, "invalid Eswatini phone number")
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, "amount must be positive")
	case errors.Is(err, limits.ErrBelowMinimum), errors.Is(err, limits.ErrAboveMaximum):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ledger.ErrDuplicateOperation):
		return fiber.NewError(http.StatusConflict, "duplicate operation")
	case errors.Is(err, ErrExternalService):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": res.Record.ID,
		"momo_reference": res.MoMoReference,
		"status":         string(res.Record.Status),
	})
}
