package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"tillsync/internal/connectivity"
	applog "tillsync/internal/log"
	"tillsync/internal/repos"
	"tillsync/internal/services"
	"tillsync/internal/worker"
)

type StatusHandler struct {
	Monitor   *connectivity.Monitor
	Worker    *worker.Worker
	Sales     *repos.SaleQueueRepo
	SyncItems *repos.SyncQueueRepo
	Engine    *services.SyncEngine
	BranchID  int64
}

func (h *StatusHandler) status() (fiber.Map, error) {
	pending, err := h.Sales.Count(h.BranchID)
	if err != nil {
		return nil, err
	}
	items, err := h.SyncItems.Count()
	if err != nil {
		return nil, err
	}
	return fiber.Map{
		"online":        h.Monitor.Online(),
		"since":         h.Monitor.Since().UTC().Format(time.RFC3339),
		"worker":        h.Worker.State().String(),
		"pending_sales": pending,
		"sync_queue":    items,
		"syncing":       h.Engine.Running(),
		"branch_id":     h.BranchID,
	}, nil
}

func (h *StatusHandler) Status(c *fiber.Ctx) error {
	st, err := h.status()
	if err != nil {
		return err
	}
	return c.JSON(st)
}

// Page renders the same status for a human at the till.
func (h *StatusHandler) Page(c *fiber.Ctx) error {
	st, err := h.status()
	if err != nil {
		return err
	}
	return render(c, "status", st)
}

// Connectivity records an online/offline event reported by the page.
func (h *StatusHandler) Connectivity(c *fiber.Ctx) error {
	var in struct {
		Online *bool `json:"online"`
	}
	if err := c.BodyParser(&in); err != nil || in.Online == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "online is required"})
	}
	changed := h.Monitor.Set(*in.Online)
	if changed {
		applog.Info(c, "connectivity.reported", map[string]any{"online": *in.Online})
	}
	return c.JSON(fiber.Map{"success": true, "online": *in.Online, "changed": changed})
}
