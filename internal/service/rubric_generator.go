package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nalar-edu/nalar-api/internal/engine/extract"
	"github.com/nalar-edu/nalar-api/internal/engine/template"
	"github.com/nalar-edu/nalar-api/internal/models"
	"github.com/nalar-edu/nalar-api/pkg/llm"
)

// RubricOptions tune rubric generation.
type RubricOptions struct {
	Temperature      float32
	MaxTokens        int
	DefaultThreshold float64
}

// RubricGenerator derives weighted scoring criteria for a generated question.
// When every extraction strategy fails it falls back to a minimal rubric
// flagged synthetic instead of failing the whole request.
type RubricGenerator interface {
	GenerateRubric(ctx context.Context, question models.Question, tmpl models.Template) (models.Rubric, error)
}

type rubricGenerator struct {
	gateway   llm.Gateway
	extractor *extract.Extractor
	opts      RubricOptions
	logger    zerolog.Logger
}

// NewRubricGenerator constructs the rubric generator.
func NewRubricGenerator(gateway llm.Gateway, extractor *extract.Extractor, opts RubricOptions, logger zerolog.Logger) RubricGenerator {
	if opts.DefaultThreshold <= 0 || opts.DefaultThreshold > 1 {
		opts.DefaultThreshold = 0.6
	}

	return &rubricGenerator{
		gateway:   gateway,
		extractor: extractor,
		opts:      opts,
		logger:    logger.With().Str("component", "rubric_generator").Logger(),
	}
}

func (g *rubricGenerator) GenerateRubric(ctx context.Context, question models.Question, tmpl models.Template) (models.Rubric, error) {
	tracer := otel.Tracer("github.com/nalar-edu/nalar-api/internal/service/rubric")
	ctx, span := tracer.Start(ctx, "rubric.generate")
	span.SetAttributes(attribute.String("rubric.question_id", question.ID))
	defer span.End()

	reply, err := g.gateway.Complete(ctx, g.buildPrompt(question, tmpl), llm.Params{
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model_call_failed")
		return models.Rubric{}, err
	}

	result := g.extractor.Extract(reply, extract.RubricSchema)
	span.SetAttributes(attribute.String("rubric.extraction_method", result.Method))

	if result.Terminal() {
		g.logger.Warn().Str("question_id", question.ID).Msg("rubric extraction exhausted every strategy, using synthetic fallback")
		return models.NewSyntheticRubric(question.ID, g.opts.DefaultThreshold)
	}

	criteria := decodeCriteria(result.Data)
	if len(criteria) == 0 {
		g.logger.Warn().Str("question_id", question.ID).Str("method", result.Method).Msg("rubric reply carried no usable criteria, using synthetic fallback")
		return models.NewSyntheticRubric(question.ID, g.opts.DefaultThreshold)
	}

	rubric := models.Rubric{
		QuestionID:    question.ID,
		PassThreshold: decodeThreshold(result.Data, g.opts.DefaultThreshold),
	}
	if err := rubric.SetCriteria(criteria); err != nil {
		return models.Rubric{}, err
	}

	return rubric, nil
}

func (g *rubricGenerator) buildPrompt(question models.Question, tmpl models.Template) string {
	builder := strings.Builder{}
	builder.WriteString("Design a scoring rubric for the following assessment question.\n\n")
	builder.WriteString("## Question\n")
	builder.WriteString(question.Text)

	if tmpl.Subject != "" {
		builder.WriteString("\n\n## Subject\n")
		builder.WriteString(tmpl.Subject)
	}

	if tmpl.TargetGrade != "" {
		builder.WriteString("\n\n## Target Grade\n")
		builder.WriteString(tmpl.TargetGrade)
	}

	if objectives := tmpl.ObjectiveList(); len(objectives) > 0 {
		builder.WriteString("\n\n")
		builder.WriteString(template.FormatConstraints("LEARNING OBJECTIVES:", objectives))
	}

	builder.WriteString("\n\nRespond with a JSON object of this exact shape: ")
	builder.WriteString(`{"criteria": [{"description": string, "weight": number, "maxScore": number}], "passThreshold": number between 0 and 1}`)
	builder.WriteString("\nUse two to four criteria. Return JSON only.")

	return template.Normalize(builder.String())
}

func decodeCriteria(data map[string]interface{}) []models.Criterion {
	raw, ok := data["criteria"].([]interface{})
	if !ok {
		return nil
	}

	criteria := make([]models.Criterion, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		description, _ := entry["description"].(string)
		if strings.TrimSpace(description) == "" {
			continue
		}

		criterion := models.Criterion{Description: description, Weight: 1, MaxScore: 1}
		if weight, ok := entry["weight"].(float64); ok && weight >= 0 {
			criterion.Weight = weight
		}
		if maxScore, ok := entry["maxScore"].(float64); ok && maxScore > 0 {
			criterion.MaxScore = maxScore
		}

		criteria = append(criteria, criterion)
	}

	return criteria
}

func decodeThreshold(data map[string]interface{}, fallback float64) float64 {
	threshold, ok := data["passThreshold"].(float64)
	if !ok || threshold <= 0 || threshold > 1 {
		return fallback
	}

	return threshold
}
