package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditGate/internal/pkg/workspacecontext"
)

// AdminTokenMiddleware guards operator routes with a shared X-Admin-Token.
// An empty configured token disables the admin surface entirely.
func AdminTokenMiddleware(token string) fiber.Handler {
	expected := []byte(strings.TrimSpace(token))
	if len(expected) == 0 {
		log.Warn("[Auth] ADMIN_TOKEN is not set, admin routes are disabled")
	}
	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "admin_disabled", "message": "Admin API is not configured"})
		}
		presented := []byte(strings.TrimSpace(c.Get("X-Admin-Token")))
		if len(presented) == 0 || subtle.ConstantTimeCompare(presented, expected) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid admin token"})
		}
		c.Locals(workspacecontext.KeyIsAdmin, true)
		return c.Next()
	}
}

// RequireWorkspace rejects requests that did not pass API key authentication.
func RequireWorkspace(c *fiber.Ctx) error {
	if workspacecontext.GetWorkspaceID(c) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "workspace API key required",
		})
	}
	return c.Next()
}
