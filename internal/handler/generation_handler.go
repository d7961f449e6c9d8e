package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/nalar-edu/nalar-api/internal/dto"
	"github.com/nalar-edu/nalar-api/internal/engine/template"
	"github.com/nalar-edu/nalar-api/internal/service"
	"github.com/nalar-edu/nalar-api/internal/utils"
	"github.com/nalar-edu/nalar-api/pkg/llm"
)

// GenerationHandler exposes question generation over HTTP.
type GenerationHandler struct {
	service service.GenerationService
	logger  zerolog.Logger
}

// NewGenerationHandler constructs a generation handler.
func NewGenerationHandler(service service.GenerationService, logger zerolog.Logger) *GenerationHandler {
	return &GenerationHandler{
		service: service,
		logger:  logger.With().Str("component", "generation_handler").Logger(),
	}
}

// Register wires generation routes.
func (h *GenerationHandler) Register(router fiber.Router) {
	router.Post("", h.generate)
}

func (h *GenerationHandler) generate(c *fiber.Ctx) error {
	var payload dto.GenerateQuestionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.GenerateQuestion(c.Context(), payload)
	if err != nil {
		var missing *template.MissingVariableError
		switch {
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		case errors.As(err, &missing):
			return utils.SendError(c, fiber.StatusBadRequest, missing.Error())
		case errors.Is(err, service.ErrTemplateNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "template not found")
		case errors.Is(err, llm.ErrModelUnavailable):
			return utils.SendError(c, fiber.StatusServiceUnavailable, "model unavailable")
		case errors.Is(err, llm.ErrModelTimeout):
			return utils.SendError(c, fiber.StatusGatewayTimeout, "model timed out")
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("question generation failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to generate question")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "question generated", response)
}
