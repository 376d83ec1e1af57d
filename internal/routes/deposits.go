package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/payflow-sz/payflow/internal/deposit"
	"github.com/payflow-sz/payflow/internal/middleware"
)

// RegisterDepositRoutes wires manual deposit request and reconciliation
// endpoints. Verification is restricted to callers holding the verifier key.
func RegisterDepositRoutes(r fiber.Router, h *deposit.Handler, verifierKey string) {
	r.Post("/deposits", h.Create)
	r.Get("/deposits/:reference", h.Get)
	r.Post("/deposits/:reference/verify", middleware.VerifierAuth(verifierKey), h.Verify)
}
