package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/payflow-sz/payflow/internal/account"
)

// RegisterAccountRoutes wires account lifecycle and history endpoints.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler) {
	r.Post("/accounts", h.Create)
	r.Get("/accounts/:accountId", h.Get)
	r.Get("/accounts/:accountId/transactions", h.Transactions)
}
