package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/payflow-sz/payflow/internal/feed"
)

// RegisterFeedRoutes wires the per-account balance change stream.
func RegisterFeedRoutes(r fiber.Router, h *feed.Handler) {
	r.Get("/accounts/:accountId/stream", h.Stream)
}
