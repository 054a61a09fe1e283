package handlers

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	applog "tillsync/internal/log"
)

const pinHeader = "X-Admin-Pin"

// pinOK checks the admin PIN header against a bcrypt hash. An empty hash
// leaves the action open.
func pinOK(c *fiber.Ctx, hash string) bool {
	if hash == "" {
		return true
	}
	pin := c.Get(pinHeader)
	if pin == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

func denyPin(c *fiber.Ctx, action string) error {
	applog.Security(c, "access.denied.pin", map[string]any{"target": action})
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "message": "Admin PIN required"})
}

// RequirePin guards destructive routes with the admin PIN.
func RequirePin(hash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !pinOK(c, hash) {
			return denyPin(c, c.Path())
		}
		return c.Next()
	}
}
