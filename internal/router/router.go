package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nalar-edu/nalar-api/internal/config"
	"github.com/nalar-edu/nalar-api/internal/handler"
	"github.com/nalar-edu/nalar-api/internal/observability"
	"github.com/nalar-edu/nalar-api/pkg/llm"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	Gateway           llm.Gateway
	GenerationHandler *handler.GenerationHandler
	ValidationHandler *handler.ValidationHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Gateway))

	if deps.GenerationHandler != nil {
		deps.GenerationHandler.Register(api.Group("/questions"))
	}

	if deps.ValidationHandler != nil {
		deps.ValidationHandler.Register(api.Group("/validations"))
	}
}
