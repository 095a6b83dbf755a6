package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/ngasd/ngasd/internal/config"
	"github.com/ngasd/ngasd/internal/handlers"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/metadata"
	"github.com/ngasd/ngasd/internal/middleware"
	"github.com/ngasd/ngasd/internal/node"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Setup configures all routes and middlewares
func Setup(app *fiber.App, logger *logging.Logger, n *node.Node, gateway metadata.Gateway, cfg config.Config) *handlers.Handler {
	h := handlers.New(logger, n, gateway)

	// Global middlewares
	app.Use(recover.New())
	app.Use(logging.FiberMiddlewareWithConfig(logger, logging.DefaultMiddlewareConfig()))

	// Health and metrics (no auth required)
	app.Get("/health", h.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	authMiddleware := middleware.APIKeyAuth(logger, cfg.Auth.APIKeys, cfg.Auth.Enabled)

	// Disk routes
	v1 := app.Group("/v1", authMiddleware)
	v1.Get("/disks", h.ListDisks)
	v1.Get("/disks/candidates", h.StreamDisks)
	v1.Get("/disks/:disk_id", h.GetDisk)
	v1.Post("/disks/target", h.FindTargetDisk)
	v1.Post("/disks/cache/reset", h.ResetCache)
	v1.Post("/disks/:disk_id/status", h.UpdateDiskStatus)

	// Node state routes
	admin := app.Group("/admin", authMiddleware)
	admin.Post("/online", h.Online)
	admin.Post("/offline", h.Offline)
	admin.Get("/state", h.State)

	// 404 handler
	app.Use(h.NotFound)

	return h
}

// New creates a new Fiber app with configuration
func New(logger *logging.Logger, n *node.Node, gateway metadata.Gateway, cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "ngasd",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	Setup(app, logger, n, gateway, cfg)

	return app
}
