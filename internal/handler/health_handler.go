package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nalar-edu/nalar-api/internal/config"
	"github.com/nalar-edu/nalar-api/internal/utils"
	"github.com/nalar-edu/nalar-api/pkg/llm"
)

// HealthResponse represents the payload returned by the health endpoint.
// ModelAvailable reflects a live probe of the inference endpoint so operators
// can tell an API problem apart from a model problem.
type HealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Service        string    `json:"service"`
	Environment    string    `json:"environment"`
	Model          string    `json:"model"`
	ModelAvailable bool      `json:"model_available"`
}

// HealthCheck returns a handler that reports application and model health.
func HealthCheck(cfg config.Config, gateway llm.Gateway) fiber.Handler {
	return func(c *fiber.Ctx) error {
		available := false
		if gateway != nil {
			available = gateway.IsAvailable(c.Context())
		}

		payload := HealthResponse{
			Status:         "ok",
			Timestamp:      time.Now().UTC(),
			Service:        cfg.AppName,
			Environment:    cfg.AppEnv,
			Model:          cfg.ModelID,
			ModelAvailable: available,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
