package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

const (
	verifierKeyHeader = "X-Verifier-Key"
	verifierIDHeader  = "X-Verifier-Id"
	verifierIDLocal   = "verifier_id"
)

// VerifierAuth gates deposit-verification endpoints behind a shared key and
// records the acting verifier identity for the handler. The identity itself
// is supplied by the (external) admin system; the core only requires that
// callers of the verify transition are authorized and named.
func VerifierAuth(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return fiber.NewError(fiber.StatusForbidden, "deposit verification is disabled")
		}

		provided := c.Get(verifierKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid verifier key")
		}

		verifierID := c.Get(verifierIDHeader)
		if verifierID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing X-Verifier-Id header")
		}

		c.Locals(verifierIDLocal, verifierID)
		return c.Next()
	}
}

// VerifierID returns the authenticated verifier identity, if any.
func VerifierID(c *fiber.Ctx) string {
	id, _ := c.Locals(verifierIDLocal).(string)
	return id
}
