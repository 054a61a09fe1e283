package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"tillsync/internal/domain"
	"tillsync/internal/i18n"
	applog "tillsync/internal/log"
	"tillsync/internal/repos"
	"tillsync/internal/services"
	"tillsync/internal/validate"
)

type CartHandler struct {
	Cart    *services.CartService
	Catalog *services.CatalogService
	P       *i18n.Printer
}

func (h *CartHandler) view(c *fiber.Ctx, extra fiber.Map) error {
	out := fiber.Map{"success": true, "items": h.Cart.Items(), "total": h.Cart.Total()}
	for k, v := range extra {
		out[k] = v
	}
	return c.JSON(out)
}

func (h *CartHandler) View(c *fiber.Ctx) error { return h.view(c, nil) }

// Add accepts a full product, or just {"id": n} to add from the local
// snapshot store.
func (h *CartHandler) Add(c *fiber.Ctx) error {
	var p domain.Product
	if err := c.BodyParser(&p); err != nil || p.ID <= 0 {
		applog.Security(c, "validation.fail", map[string]any{"field": "product"})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "invalid product"})
	}
	if strings.TrimSpace(p.Name) == "" {
		snap, err := h.Catalog.Product(p.ID)
		if repos.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "unknown product"})
		}
		if err != nil {
			return err
		}
		p = snap
	}
	if err := h.Cart.AddItem(p); err != nil {
		return err
	}
	return h.view(c, nil)
}

type lineUpdate struct {
	Quantity json.RawMessage `json:"quantity"`
	Price    json.RawMessage `json:"price"`
	Discount json.RawMessage `json:"discount"`
	Percent  json.RawMessage `json:"percent"`
}

// rawInput turns a JSON number or string into the text a cashier typed.
func rawInput(m json.RawMessage) string {
	var s string
	if json.Unmarshal(m, &s) == nil {
		return s
	}
	return string(m)
}

func (h *CartHandler) Update(c *fiber.Ctx) error {
	idx, ok := validate.Index(c.Params("index"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "no such line"})
	}
	var in lineUpdate
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		applog.Security(c, "validation.fail", map[string]any{"field": "line"})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "invalid body"})
	}

	var warning *domain.Message
	err := func() error {
		if in.Quantity != nil {
			clamped, err := h.Cart.UpdateQuantity(idx, rawInput(in.Quantity))
			if err != nil {
				return err
			}
			if clamped {
				warning = &domain.Message{
					Type: domain.MessageWarning,
					Text: h.P.Sprintf(i18n.QuantityClamped, h.Cart.Limits.MaxQuantity),
				}
			}
		}
		if in.Price != nil {
			if err := h.Cart.UpdatePrice(idx, rawInput(in.Price)); err != nil {
				return err
			}
		}
		if in.Discount != nil {
			if err := h.Cart.UpdateDiscount(idx, rawInput(in.Discount)); err != nil {
				return err
			}
		}
		if in.Percent != nil {
			return h.Cart.UpdatePercent(idx, rawInput(in.Percent))
		}
		return nil
	}()
	if errors.Is(err, services.ErrIndexOutOfRange) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "no such line"})
	}
	if err != nil {
		return err
	}
	if warning != nil {
		return h.view(c, fiber.Map{"message": warning})
	}
	return h.view(c, nil)
}

func (h *CartHandler) Remove(c *fiber.Ctx) error {
	if idx, ok := validate.Index(c.Params("index")); ok {
		if err := h.Cart.RemoveItem(idx); err != nil {
			return err
		}
	}
	return h.view(c, nil)
}

func (h *CartHandler) Clear(c *fiber.Ctx) error {
	if err := h.Cart.Clear(); err != nil {
		return err
	}
	applog.Audit(c, "cart.clear", nil)
	return h.view(c, nil)
}
