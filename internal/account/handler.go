package account

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/payflow-sz/payflow/internal/identity"
	"github.com/payflow-sz/payflow/internal/ledger"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	OwnerID        string `json:"owner_id"`
	InitialBalance string `json:"initial_balance"`
}

type accountResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAccountResponse(acct ledger.Account) accountResponse {
	return accountResponse{
		ID:        acct.ID,
		OwnerID:   acct.OwnerID,
		Balance:   acct.Balance.StringFixed(2),
		CreatedAt: acct.CreatedAt,
		UpdatedAt: acct.UpdatedAt,
	}
}

// Create provisions an account for a registered owner.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	initial := decimal.Zero
	if req.InitialBalance != "" {
		var err error
		initial, err = decimal.NewFromString(req.InitialBalance)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid initial_balance")
		}
	}

	acct, err := h.service.Create(c.UserContext(), CreateInput{OwnerID: req.OwnerID, InitialBalance: initial})
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrUserNotFound):
		return fiber.NewError(http.StatusNotFound, "owner not found")
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, "initial balance must not be negative")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(toAccountResponse(acct))
}

// Get returns the account snapshot.
func (h *Handler) Get(c *fiber.Ctx) error {
	acct, err := h.service.Get(c.UserContext(), c.Params("accountId"))
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return fiber.NewError(http.StatusNotFound, "account not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toAccountResponse(acct))
}

type transactionResponse struct {
	ID          string            `json:"id"`
	PayerID     string            `json:"payer_id"`
	ReceiverID  string            `json:"receiver_id"`
	Amount      string            `json:"amount"`
	Kind        string            `json:"kind"`
	Description string            `json:"description"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Transactions lists the account's transaction history.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	filter := ledger.ParseFilter(c.Query("filter"))
	search := c.Query("q")

	records, err := h.service.Transactions(c.UserContext(), c.Params("accountId"), filter, search)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return fiber.NewError(http.StatusNotFound, "account not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]transactionResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, transactionResponse{
			ID:          rec.ID,
			PayerID:     rec.PayerID,
			ReceiverID:  rec.ReceiverID,
			Amount:      rec.Amount.StringFixed(2),
			Kind:        string(rec.Kind),
			Description: rec.Description,
			Status:      string(rec.Status),
			CreatedAt:   rec.CreatedAt,
			Metadata:    rec.Metadata,
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account_id":   c.Params("accountId"),
		"filter":       string(filter),
		"transactions": out,
	})
}
