package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"tillsync/internal/log"
	"tillsync/internal/services"
	"tillsync/internal/validate"
)

type SearchHandler struct {
	Catalog *services.CatalogService
}

func (h *SearchHandler) Search(c *fiber.Ctx) error {
	rawQ := c.Query("q")
	if strings.TrimSpace(rawQ) == "" {
		return c.JSON(fiber.Map{"success": true, "products": []any{}, "offline": false})
	}
	q, ok := validate.Q(rawQ)
	if !ok {
		log.Security(c, "validation.fail", map[string]any{"field": "q", "value": rawQ})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "message": "Enter a valid keyword (letters/numbers only)",
		})
	}

	res, err := h.Catalog.Search(c.UserContext(), q)
	if err != nil {
		log.Error(c, "search.error", err, nil)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false, "message": "Could not load results. Please retry.",
		})
	}
	return c.JSON(fiber.Map{"success": true, "products": res.Products, "offline": res.Offline})
}
