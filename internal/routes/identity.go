package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/payflow-sz/payflow/internal/identity"
)

// RegisterIdentityRoutes wires user registration endpoints.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/identities", h.Register)
}
