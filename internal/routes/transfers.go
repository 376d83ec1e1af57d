package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/payflow-sz/payflow/internal/momo"
	"github.com/payflow-sz/payflow/internal/transfer"
)

// RegisterTransferRoutes wires wallet transfer and top-up endpoints.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler) {
	r.Post("/transfers", h.Transfer)
	r.Post("/topups", h.TopUp)
}

// RegisterMoMoRoutes wires the mobile-money funded top-up endpoint.
func RegisterMoMoRoutes(r fiber.Router, h *momo.Handler) {
	r.Post("/topups/momo", h.TopUp)
}
