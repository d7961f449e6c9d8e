package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/nalar-edu/nalar-api/internal/dto"
	"github.com/nalar-edu/nalar-api/internal/service"
	"github.com/nalar-edu/nalar-api/internal/utils"
)

// ValidationHandler exposes answer validation over HTTP.
type ValidationHandler struct {
	service service.ValidationService
	logger  zerolog.Logger
}

// NewValidationHandler constructs a validation handler.
func NewValidationHandler(service service.ValidationService, logger zerolog.Logger) *ValidationHandler {
	return &ValidationHandler{
		service: service,
		logger:  logger.With().Str("component", "validation_handler").Logger(),
	}
}

// Register wires validation routes.
func (h *ValidationHandler) Register(router fiber.Router) {
	router.Post("", h.validate)
}

func (h *ValidationHandler) validate(c *fiber.Ctx) error {
	var payload dto.ValidateAnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Validate(c.Context(), payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		case errors.Is(err, service.ErrQuestionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "question not found")
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("answer validation failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to validate answer")
		}
	}

	return utils.SendSuccess(c, "answer validated", response)
}
