package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	applog "tillsync/internal/log"
	"tillsync/internal/services"
	"tillsync/internal/worker"
)

type WorkerHandler struct {
	Worker    *worker.Worker
	PinHash   string
	Heartbeat time.Duration
}

// Message runs a page->worker command and returns its direct reply.
func (h *WorkerHandler) Message(c *fiber.Ctx) error {
	var m worker.Message
	if err := json.Unmarshal(c.Body(), &m); err != nil || m.Type == "" {
		applog.Security(c, "validation.fail", map[string]any{"field": "message"})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "invalid message"})
	}
	if worker.Command(m.Type) == worker.CmdClearCache && !pinOK(c, h.PinHash) {
		return denyPin(c, m.Type)
	}

	reply, err := h.Worker.HandleMessage(c.UserContext(), m)
	switch {
	case errors.Is(err, worker.ErrUnknownCommand), errors.Is(err, worker.ErrBadPayload):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": err.Error()})
	case errors.Is(err, worker.ErrNotInstalled), errors.Is(err, services.ErrSyncInProgress):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "message": err.Error()})
	case err != nil:
		return err
	}
	if worker.Command(m.Type) == worker.CmdClearCache {
		applog.Audit(c, "sw.clear_cache", nil)
	}
	return c.JSON(fiber.Map{"success": true, "reply": reply})
}

// Events streams worker->page messages as server-sent events.
func (h *WorkerHandler) Events(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	id, msgs, cancel := h.Worker.Clients().Subscribe(32)
	applog.Info(c, "sw.events.open", map[string]any{"client": id})
	beat := h.Heartbeat
	if beat <= 0 {
		beat = 25 * time.Second
	}

	// c is recycled once the handler returns; the writer must not touch it.
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer applog.Info(nil, "sw.events.close", map[string]any{"component": "sw", "client": id})
		ping := time.NewTicker(beat)
		defer ping.Stop()

		hello, _ := worker.NewMessage("HELLO", map[string]string{"client": id, "state": h.Worker.State().String()})
		if writeEvent(w, hello) != nil {
			return
		}
		for {
			select {
			case m, ok := <-msgs:
				if !ok || writeEvent(w, m) != nil {
					return
				}
			case <-ping.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if w.Flush() != nil {
					return
				}
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, m worker.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Type, b); err != nil {
		return err
	}
	return w.Flush()
}
