package deposit

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/payflow-sz/payflow/internal/ledger"
	"github.com/payflow-sz/payflow/internal/limits"
	"github.com/payflow-sz/payflow/internal/middleware"
)

// Handler exposes the manual-deposit endpoints.
type Handler struct {
	service *Service
	guard   *limits.Guard
}

// NewHandler constructs a deposit handler.
func NewHandler(service *Service, guard *limits.Guard) *Handler {
	return &Handler{service: service, guard: guard}
}

type createRequest struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
	Method    string `json:"method"`
}

type verifyRequest struct {
	Approve bool `json:"approve"`
}

type referenceResponse struct {
	ReferenceNumber string    `json:"reference_number"`
	AccountID       string    `json:"account_id"`
	Amount          string    `json:"amount"`
	Method          string    `json:"method"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// Create issues a deposit reference with out-of-band payment instructions.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	if h.guard != nil {
		if err := h.guard.CheckManualDeposit(amount); err != nil {
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		}
	}

	res, err := h.service.CreateRequest(c.UserContext(), req.AccountID, amount, ledger.Method(req.Method))
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, "amount must be positive")
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ledger.ErrReferenceExists):
		return fiber.NewError(http.StatusServiceUnavailable, "could not allocate a reference number, retry")
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	instructions := fiber.Map{}
	if res.Reference.Method == ledger.MethodBankTransfer {
		instructions = fiber.Map{
			"bank_name":      res.Instructions.BankName,
			"account_number": res.Instructions.BankAccountNumber,
			"account_name":   res.Instructions.BankAccountName,
			"branch_code":    res.Instructions.BranchCode,
			"swift_code":     res.Instructions.SwiftCode,
		}
	} else {
		instructions = fiber.Map{
			"phone_number": res.Instructions.MoMoPhone,
			"account_name": res.Instructions.MoMoAccountName,
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"reference":    toReferenceResponse(res.Reference),
		"instructions": instructions,
	})
}

// Verify applies or rejects a pending deposit. The verifier identity comes
// from the admin-auth middleware.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	verifierID := middleware.VerifierID(c)
	if verifierID == "" {
		return fiber.NewError(http.StatusUnauthorized, "verifier identity required")
	}

	ref, err := h.service.Verify(c.UserContext(), c.Params("reference"), verifierID, req.Approve)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrReferenceNotFound):
		return fiber.NewError(http.StatusNotFound, "reference not found")
	case errors.Is(err, ErrAlreadyProcessed):
		return fiber.NewError(http.StatusConflict, "reference already processed")
	case errors.Is(err, ledger.ErrConflict):
		return fiber.NewError(http.StatusServiceUnavailable, "ledger contention, retry")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"reference":   toReferenceResponse(ref),
		"verified_by": ref.VerifiedBy,
		"verified_at": ref.VerifiedAt,
	})
}

// Get returns the state of a deposit reference.
func (h *Handler) Get(c *fiber.Ctx) error {
	ref, err := h.service.Reference(c.UserContext(), c.Params("reference"))
	if err != nil {
		if errors.Is(err, ledger.ErrReferenceNotFound) {
			return fiber.NewError(http.StatusNotFound, "reference not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toReferenceResponse(ref))
}

func toReferenceResponse(ref ledger.DepositReference) referenceResponse {
	return referenceResponse{
		ReferenceNumber: ref.ReferenceNumber,
		AccountID:       ref.AccountID,
		Amount:          ref.Amount.StringFixed(2),
		Method:          string(ref.Method),
		Status:          string(ref.Status),
		CreatedAt:       ref.CreatedAt,
	}
}
