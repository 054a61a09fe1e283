package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"tillsync/internal/agent"
	applog "tillsync/internal/log"
)

const (
	searchMax    = 30
	searchWindow = time.Minute
)

// ErrorHandler logs the failure and answers without leaking internals.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return c.Status(fe.Code).JSON(fiber.Map{"success": false, "message": fe.Message})
	}
	applog.Error(c, "server.error", err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false, "message": "Something went wrong. Please try again.",
	})
}

// NewApp builds the agent's HTTP server with its middleware and routes.
func NewApp(a *agent.Agent) *fiber.App {
	app := fiber.New(fiber.Config{
		Views:                 a.Views,
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})
	// Global body size guard
	app.Server().MaxRequestBodySize = 1 << 20 // 1 MiB

	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Next: func(c *fiber.Ctx) bool { return c.Path() == "/sw/events" },
	}))
	app.Use(helmet.New())

	Mount(app, a)
	return app
}

// Mount registers the agent routes. The worker catch-all goes last.
func Mount(app *fiber.App, a *agent.Agent) {
	deps := NewDeps(a)

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })

	pos := app.Group("/pos")
	pos.Get("/", deps.StatusHandler.Page)
	pos.Get("/status", deps.StatusHandler.Status)
	pos.Post("/connectivity", deps.StatusHandler.Connectivity)

	pos.Get("/cart", deps.CartHandler.View)
	pos.Delete("/cart", deps.CartHandler.Clear)
	pos.Post("/cart/items", deps.CartHandler.Add)
	pos.Patch("/cart/items/:index", deps.CartHandler.Update)
	pos.Delete("/cart/items/:index", deps.CartHandler.Remove)
	pos.Post("/checkout", deps.CheckoutHandler.Place)

	pos.Post("/sync", deps.SyncHandler.Sync)
	pos.Get("/queue", deps.SyncHandler.Queue)
	pos.Post("/queue/:id/requeue", RequirePin(a.Cfg.AdminPinHash), deps.SyncHandler.Requeue)

	pos.Get("/products/search", limiter.New(limiter.Config{
		Max:        searchMax,
		Expiration: searchWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|search"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.search.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"success": false, "message": "rate limit exceeded, retry soon"})
		},
	}), deps.SearchHandler.Search)

	sw := app.Group("/sw")
	sw.Post("/message", deps.WorkerHandler.Message)
	sw.Get("/events", deps.WorkerHandler.Events)

	app.Get("/*", deps.ProxyHandler.Fetch)
	app.All("/*", deps.ProxyHandler.Pass)
}
