package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"tillsync/internal/domain"
	"tillsync/internal/i18n"
	applog "tillsync/internal/log"
	"tillsync/internal/repos"
	"tillsync/internal/services"
)

type SyncHandler struct {
	Engine   *services.SyncEngine
	Sales    *repos.SaleQueueRepo
	BranchID int64
	P        *i18n.Printer
}

func (h *SyncHandler) Sync(c *fiber.Ctx) error {
	res, err := h.Engine.SyncQueue(c.UserContext())
	if errors.Is(err, services.ErrSyncInProgress) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": domain.Message{Type: domain.MessageInfo, Text: h.P.Sprintf(i18n.SyncBusy)},
		})
	}
	if err != nil {
		return err
	}
	applog.Audit(c, "sync.manual", map[string]any{"success": res.Success, "failed": res.Failed})
	return c.JSON(fiber.Map{
		"success": res.Failed == 0,
		"result":  res,
		"message": services.Summary(h.P, res),
	})
}

func (h *SyncHandler) Queue(c *fiber.Ctx) error {
	pending, err := h.Sales.Pending(h.BranchID)
	if err != nil {
		return err
	}
	dead, err := h.Sales.Dead(h.BranchID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "pending": pending, "dead": dead})
}

func (h *SyncHandler) Requeue(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "invalid id"})
	}
	if err := h.Engine.Requeue(id); err != nil {
		if repos.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "no dead-lettered sale with that id"})
		}
		return err
	}
	applog.Audit(c, "sync.requeue", map[string]any{"sale_id": id})
	return c.JSON(fiber.Map{"success": true})
}
