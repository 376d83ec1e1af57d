package transfer

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/payflow-sz/payflow/internal/ledger"
	"github.com/payflow-sz/payflow/internal/limits"
)

// Handler exposes transfer and top-up endpoints. Transaction limits are
// enforced here, at the boundary, before the engine runs.
type Handler struct {
	service *Service
	guard   *limits.Guard
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service, guard *limits.Guard) *Handler {
	return &Handler{service: service, guard: guard}
}

type transferRequest struct {
	PayerID        string            `json:"payer_id"`
	ReceiverID     string            `json:"receiver_id"`
	Amount         string            `json:"amount"`
	Kind           string            `json:"kind"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata"`
	IdempotencyKey string            `json:"idempotency_key"`
}

type topUpRequest struct {
	AccountID      string `json:"account_id"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Transfer moves funds between two accounts.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	kind := ledger.KindTransfer
	if req.Kind != "" {
		kind = ledger.Kind(req.Kind)
		if !kind.Valid() || kind == ledger.KindTopUp {
			return fiber.NewError(http.StatusBadRequest, "invalid kind")
		}
	}

	if h.guard != nil {
		if err := h.guard.CheckDailySpend(c.UserContext(), req.PayerID, amount); err != nil {
			if errors.Is(err, limits.ErrDailyLimitExceeded) {
				return fiber.NewError(http.StatusUnprocessableEntity, "daily transaction limit exceeded")
			}
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	rec, err := h.service.Transfer(c.UserContext(), Input{
		PayerID:        req.PayerID,
		ReceiverID:     req.ReceiverID,
		Amount:         amount,
		Kind:           kind,
		Description:    req.Description,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return mapTransferError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": rec.ID,
		"status":         string(rec.Status),
		"created_at":     rec.CreatedAt,
	})
}

// TopUp credits an account from the external top-up source.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	if h.guard != nil {
		if err := h.guard.CheckTopUp(amount); err != nil {
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		}
	}

	rec, err := h.service.TopUp(c.UserContext(), req.AccountID, amount, req.IdempotencyKey, nil)
	if err != nil {
		return mapTransferError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": rec.ID,
		"status":         string(rec.Status),
		"created_at":     rec.CreatedAt,
	})
}

func mapTransferError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, "amount must be positive")
	case errors.Is(err, ErrSelfTransfer):
		return fiber.NewError(http.StatusBadRequest, "payer and receiver must differ")
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "insufficient funds")
	case errors.Is(err, ledger.ErrDuplicateOperation):
		return fiber.NewError(http.StatusConflict, "duplicate operation")
	case errors.Is(err, ledger.ErrConflict):
		return fiber.NewError(http.StatusServiceUnavailable, "ledger contention, retry")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
