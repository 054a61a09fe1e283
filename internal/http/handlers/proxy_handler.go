package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"

	applog "tillsync/internal/log"
	"tillsync/internal/worker"
)

// hop-by-hop and framing headers are set by fiber itself
var skipHeaders = map[string]bool{
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Connection":        true,
	"Content-Encoding":  true,
	"Keep-Alive":        true,
}

type ProxyHandler struct {
	Worker   *worker.Worker
	Upstream string
}

// Fetch lets the worker answer a GET from the network or its caches.
func (h *ProxyHandler) Fetch(c *fiber.Ctx) error {
	u, err := h.Worker.Origin().Parse(c.OriginalURL())
	if err != nil {
		applog.Security(c, "validation.fail", map[string]any{"field": "url"})
		return c.SendStatus(fiber.StatusBadRequest)
	}
	hdr := http.Header{}
	for k, vs := range c.GetReqHeaders() {
		for _, v := range vs {
			hdr.Add(k, v)
		}
	}

	resp, err := h.Worker.HandleFetch(c.UserContext(), worker.Request{Method: c.Method(), URL: u, Header: hdr})
	if errors.Is(err, worker.ErrNotIntercepted) {
		return h.Pass(c)
	}
	if err != nil {
		return err
	}
	for k := range resp.Header {
		if !skipHeaders[k] {
			c.Set(k, resp.Header.Get(k))
		}
	}
	c.Set("X-Tillsync-Source", string(resp.Source))
	return c.Status(resp.Status).Send(resp.Body)
}

// Pass forwards the request to the ERP untouched and uncached.
func (h *ProxyHandler) Pass(c *fiber.Ctx) error {
	if err := proxy.Do(c, h.Upstream+c.OriginalURL()); err != nil {
		applog.Error(c, "proxy.pass", err, nil)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "offline": true, "message": "The server cannot be reached."})
	}
	return nil
}
