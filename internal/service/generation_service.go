package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/nalar-edu/nalar-api/internal/dto"
	"github.com/nalar-edu/nalar-api/internal/engine/template"
	"github.com/nalar-edu/nalar-api/internal/models"
	"github.com/nalar-edu/nalar-api/internal/repository"
	"github.com/nalar-edu/nalar-api/pkg/llm"
)

// ErrTemplateNotFound indicates the referenced template does not exist.
var ErrTemplateNotFound = errors.New("template not found")

const contextOmissionMarker = "[... middle of source material omitted ...]"

// GenerationOptions tune prompt composition and model sampling for question
// generation.
type GenerationOptions struct {
	Temperature        float32
	MaxTokens          int
	ContextTokenBudget int
}

// GenerationService turns a template plus source content into a persisted
// question with its rubric.
type GenerationService interface {
	GenerateQuestion(ctx context.Context, payload dto.GenerateQuestionRequest) (dto.QuestionResponse, error)
}

type generationService struct {
	templates repository.TemplateRepository
	questions repository.QuestionRepository
	rubrics   repository.RubricRepository
	gateway   llm.Gateway
	rubricGen RubricGenerator
	validator *validator.Validate
	opts      GenerationOptions
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// NewGenerationService constructs the generation service.
func NewGenerationService(
	templates repository.TemplateRepository,
	questions repository.QuestionRepository,
	rubrics repository.RubricRepository,
	gateway llm.Gateway,
	rubricGen RubricGenerator,
	validator *validator.Validate,
	opts GenerationOptions,
	logger zerolog.Logger,
) GenerationService {
	return &generationService{
		templates: templates,
		questions: questions,
		rubrics:   rubrics,
		gateway:   gateway,
		rubricGen: rubricGen,
		validator: validator,
		opts:      opts,
		logger:    logger.With().Str("component", "generation_service").Logger(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *generationService) GenerateQuestion(ctx context.Context, payload dto.GenerateQuestionRequest) (dto.QuestionResponse, error) {
	tracer := otel.Tracer("github.com/nalar-edu/nalar-api/internal/service/generation")
	ctx, span := tracer.Start(ctx, "generation.question")
	span.SetAttributes(attribute.Int64("generation.template_id", int64(payload.TemplateID)))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.QuestionResponse{}, err
	}

	tmpl, err := s.templates.GetByID(ctx, payload.TemplateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "template_not_found")
			return dto.QuestionResponse{}, ErrTemplateNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "template_lookup_failed")
		return dto.QuestionResponse{}, err
	}

	prompt, err := s.buildPrompt(tmpl, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prompt_build_failed")
		return dto.QuestionResponse{}, err
	}

	reply, err := s.gateway.Complete(ctx, prompt, llm.Params{
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model_call_failed")
		return dto.QuestionResponse{}, err
	}

	question := models.Question{
		ID:            s.newID(),
		TemplateID:    tmpl.ID,
		PromptContext: payload.Context,
		Text:          cleanReply(reply),
		CreatedAt:     s.now(),
	}

	if question.Text == "" {
		span.SetStatus(codes.Error, "empty_question")
		return dto.QuestionResponse{}, errors.New("model returned an empty question")
	}

	if err := s.questions.Create(ctx, &question); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "question_persist_failed")
		return dto.QuestionResponse{}, err
	}

	rubric, err := s.rubricGen.GenerateRubric(ctx, question, tmpl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rubric_generation_failed")
		return dto.QuestionResponse{}, err
	}

	if err := s.rubrics.Create(ctx, &rubric); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rubric_persist_failed")
		return dto.QuestionResponse{}, err
	}

	s.logger.Info().
		Str("question_id", question.ID).
		Uint("template_id", tmpl.ID).
		Bool("synthetic_rubric", rubric.Synthetic).
		Msg("question generated")

	span.SetAttributes(attribute.String("generation.question_id", question.ID))
	return dto.NewQuestionResponse(question, rubric), nil
}

func (s *generationService) buildPrompt(tmpl models.Template, payload dto.GenerateQuestionRequest) (string, error) {
	substituted, err := template.Substitute(tmpl.Pattern, payload.Variables)
	if err != nil {
		return "", err
	}

	builder := strings.Builder{}
	builder.WriteString("You are an experienced teacher preparing an assessment question.\n\n")
	builder.WriteString("## Task\n")
	builder.WriteString(substituted)

	if block := template.FormatConstraints("CONSTRAINTS:", tmpl.ConstraintList()); block != "" {
		builder.WriteString("\n\n")
		builder.WriteString(block)
	}

	if objectives := tmpl.ObjectiveList(); len(objectives) > 0 {
		builder.WriteString("\n\n")
		builder.WriteString(template.FormatConstraints("LEARNING OBJECTIVES:", objectives))
	}

	if payload.Context != "" {
		builder.WriteString("\n\n## Source Material\n")
		builder.WriteString(truncateContext(payload.Context, s.opts.ContextTokenBudget))
	}

	if payload.Language != "" {
		builder.WriteString("\n\nWrite the question in ")
		builder.WriteString(payload.Language)
		builder.WriteString(".")
	}

	builder.WriteString("\n\nReturn only the question text, with no preamble and no quotation marks.")

	return template.Normalize(builder.String()), nil
}

// truncateContext keeps the first and last thirds of the token budget when
// source content is too long, marking the omitted middle. Lead and tail carry
// most of the signal in educational source material.
func truncateContext(content string, tokenBudget int) string {
	if tokenBudget <= 0 {
		return content
	}

	words := strings.Fields(content)
	if len(words) <= tokenBudget {
		return content
	}

	keep := tokenBudget / 3
	if keep == 0 {
		keep = 1
	}

	head := strings.Join(words[:keep], " ")
	tail := strings.Join(words[len(words)-keep:], " ")

	return head + "\n\n" + contextOmissionMarker + "\n\n" + tail
}

// cleanReply strips the enclosing whitespace and quote pairs small models
// like to wrap free-text replies in.
func cleanReply(reply string) string {
	text := strings.TrimSpace(reply)

	for len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			text = strings.TrimSpace(text[1 : len(text)-1])
			continue
		}
		break
	}

	return text
}
