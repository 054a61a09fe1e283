package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tillsync/internal/services"
)

type CheckoutHandler struct {
	Checkout *services.CheckoutService
}

func (h *CheckoutHandler) Place(c *fiber.Ctx) error {
	out, err := h.Checkout.Checkout(c.UserContext())
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	switch out.Status {
	case services.CheckoutCompleted:
		status = fiber.StatusCreated
	case services.CheckoutQueued:
		status = fiber.StatusAccepted
	case services.CheckoutEmpty:
		status = fiber.StatusBadRequest
	case services.CheckoutFailed:
		status = fiber.StatusBadGateway
		if len(out.Errors) > 0 {
			status = fiber.StatusUnprocessableEntity
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"success": out.Status == services.CheckoutCompleted || out.Status == services.CheckoutQueued,
		"status":  out.Status,
		"message": out.Message,
		"code":    out.Code,
		"errors":  out.Errors,
		"sale":    out.Sale,
	})
}
