package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
	"github.com/nalar-edu/nalar-api/internal/engine/constraint"
	"github.com/nalar-edu/nalar-api/internal/engine/extract"
	"github.com/nalar-edu/nalar-api/internal/engine/template"
	"github.com/nalar-edu/nalar-api/internal/models"
	"github.com/nalar-edu/nalar-api/internal/observability"
	"github.com/nalar-edu/nalar-api/internal/repository"
	"github.com/nalar-edu/nalar-api/pkg/llm"
)

// ErrQuestionNotFound indicates the referenced question does not exist.
var ErrQuestionNotFound = errors.New("question not found")

const deterministicMethod = "deterministic"

// ValidationOptions tune the pipeline's model calls.
type ValidationOptions struct {
	Temperature float32
	MaxTokens   int
}

// ValidationService runs the configured stage sequence against a student
// answer and records the aggregate verdict.
type ValidationService interface {
	Validate(ctx context.Context, payload dto.ValidateAnswerRequest) (dto.ValidationResponse, error)
}

type validationService struct {
	questions repository.QuestionRepository
	rubrics   repository.RubricRepository
	records   repository.ValidationRepository
	gateway   llm.Gateway
	extractor *extract.Extractor
	stages    []models.StageDescriptor
	validator *validator.Validate
	opts      ValidationOptions
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// NewValidationService constructs the validation pipeline service.
func NewValidationService(
	questions repository.QuestionRepository,
	rubrics repository.RubricRepository,
	records repository.ValidationRepository,
	gateway llm.Gateway,
	extractor *extract.Extractor,
	stages []models.StageDescriptor,
	validator *validator.Validate,
	opts ValidationOptions,
	logger zerolog.Logger,
) ValidationService {
	return &validationService{
		questions: questions,
		rubrics:   rubrics,
		records:   records,
		gateway:   gateway,
		extractor: extractor,
		stages:    stages,
		validator: validator,
		opts:      opts,
		logger:    logger.With().Str("component", "validation_service").Logger(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *validationService) Validate(ctx context.Context, payload dto.ValidateAnswerRequest) (dto.ValidationResponse, error) {
	tracer := otel.Tracer("github.com/nalar-edu/nalar-api/internal/service/validation")
	ctx, span := tracer.Start(ctx, "validation.run")
	span.SetAttributes(attribute.String("validation.question_id", payload.QuestionID))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.ValidationResponse{}, err
	}

	question, err := s.questions.GetByID(ctx, payload.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "question_not_found")
			return dto.ValidationResponse{}, ErrQuestionNotFound
		}
		span.RecordError(err)
		return dto.ValidationResponse{}, err
	}

	rubric, err := s.rubrics.GetByQuestionID(ctx, payload.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "rubric_not_found")
			return dto.ValidationResponse{}, fmt.Errorf("question %s has no rubric", payload.QuestionID)
		}
		span.RecordError(err)
		return dto.ValidationResponse{}, err
	}

	result := s.runPipeline(ctx, question, rubric, payload.Answer)
	observability.ValidationRuns().WithLabelValues(string(result.Passed)).Inc()
	span.SetAttributes(
		attribute.String("validation.outcome", string(result.Passed)),
		attribute.Float64("validation.score", result.Score),
	)

	record, err := models.NewValidationRecord(s.newID(), question.ID, payload.Answer, result)
	if err != nil {
		span.RecordError(err)
		return dto.ValidationResponse{}, err
	}
	record.CreatedAt = s.now()

	// An abandoned run must still be persisted, so detach from cancellation.
	if err := s.records.Create(context.WithoutCancel(ctx), &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record_persist_failed")
		return dto.ValidationResponse{}, err
	}

	return dto.NewValidationResponse(record, result), nil
}

// runPipeline executes stages strictly in configured order: later stage
// prompts embed earlier stage results, and the inference endpoint cannot
// serve one logical request concurrently anyway.
func (s *validationService) runPipeline(ctx context.Context, question models.Question, rubric models.Rubric, answer string) models.ValidationResult {
	var results []models.StageResult

	rules := answerRules(question.Template)

	for _, stage := range s.stages {
		if err := ctx.Err(); err != nil {
			return abortedResult(results)
		}

		var result models.StageResult
		if stage.Local || stage.Name == models.StageConstraints {
			skip := false
			result, skip = s.runLocalStage(stage, answer, rules)
			if skip {
				continue
			}
		} else {
			var aborted bool
			result, aborted = s.runModelStage(ctx, stage, question, rubric, answer, results)
			if aborted {
				return abortedResult(results)
			}
		}

		results = append(results, result)
		observability.StageOutcomes().WithLabelValues(stage.Name, string(result.Status)).Inc()

		if stage.Blocking && result.Status == models.StageStatusFailed {
			return models.ValidationResult{
				Passed:       models.OutcomeFailed,
				Score:        scoreOrZero(result.Score),
				StageResults: results,
				Feedback:     result.Feedback,
			}
		}

		if stage.Blocking && result.Status == models.StageStatusError {
			// A system fault on a gating stage must never read as a judgment.
			return models.ValidationResult{
				Passed:       models.OutcomeInconclusive,
				StageResults: results,
				Feedback:     "the answer could not be evaluated; please retry or escalate to review",
			}
		}
	}

	return s.aggregate(results, rubric.PassThreshold)
}

// runLocalStage evaluates deterministic constraint rules without a model
// call. Skip is reported when no rules are configured for the template.
func (s *validationService) runLocalStage(stage models.StageDescriptor, answer string, rules constraint.Rules) (models.StageResult, bool) {
	if rules.Empty() {
		return models.StageResult{}, true
	}

	report := constraint.Check(answer, rules)

	result := models.StageResult{
		Stage:            stage.Name,
		Status:           models.StageStatusPassed,
		Score:            scorePtr(1),
		Feedback:         "all constraints satisfied",
		ExtractionMethod: deterministicMethod,
	}
	if !report.Passed {
		result.Status = models.StageStatusFailed
		result.Score = scorePtr(0)
		result.Feedback = report.Feedback()
	}

	return result, false
}

// runModelStage issues one gateway call and extracts its structured verdict.
// Transport faults and terminal extraction failures both land in an error
// status; they mean "could not be evaluated", never "failed".
func (s *validationService) runModelStage(ctx context.Context, stage models.StageDescriptor, question models.Question, rubric models.Rubric, answer string, prior []models.StageResult) (models.StageResult, bool) {
	prompt := s.buildStagePrompt(stage, question, rubric, answer, prior)

	reply, err := s.gateway.Complete(ctx, prompt, llm.Params{
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.StageResult{}, true
		}

		s.logger.Warn().Err(err).Str("stage", stage.Name).Msg("stage model call failed")
		return models.StageResult{
			Stage:            stage.Name,
			Status:           models.StageStatusError,
			Feedback:         stageErrorFeedback(err),
			ExtractionMethod: extract.MethodNone,
		}, false
	}

	extraction := s.extractor.Extract(reply, extract.StageResultSchema)
	observability.ExtractionMethods().WithLabelValues(extraction.Method).Inc()

	if extraction.Terminal() {
		s.logger.Warn().Str("stage", stage.Name).Msg("stage reply defeated every extraction strategy")
		return models.StageResult{
			Stage:            stage.Name,
			Status:           models.StageStatusError,
			Feedback:         "the evaluation reply could not be interpreted",
			ExtractionMethod: extract.MethodNone,
		}, false
	}

	passed, hasVerdict := extraction.Data["passed"].(bool)
	if !hasVerdict {
		return models.StageResult{
			Stage:            stage.Name,
			Status:           models.StageStatusError,
			Feedback:         "the evaluation reply carried no verdict",
			ExtractionMethod: extraction.Method,
		}, false
	}

	result := models.StageResult{
		Stage:            stage.Name,
		ExtractionMethod: extraction.Method,
	}

	if passed {
		result.Status = models.StageStatusPassed
		result.Score = scorePtr(1)
	} else {
		result.Status = models.StageStatusFailed
		result.Score = scorePtr(0)
	}

	if score, ok := extraction.Data["score"].(float64); ok {
		result.Score = scorePtr(score)
	}

	if feedback, ok := extraction.Data["feedback"].(string); ok {
		result.Feedback = feedback
	}

	return result, false
}

func (s *validationService) buildStagePrompt(stage models.StageDescriptor, question models.Question, rubric models.Rubric, answer string, prior []models.StageResult) string {
	builder := strings.Builder{}
	builder.WriteString(stageInstruction(stage, question.Template))
	builder.WriteString("\n\n## Question\n")
	builder.WriteString(question.Text)
	builder.WriteString("\n\n## Student Answer\n")
	builder.WriteString(answer)

	if stage.Name == models.StageRubricScoring {
		if criteria, err := rubric.CriteriaList(); err == nil && len(criteria) > 0 {
			builder.WriteString("\n\n## Rubric\n")
			for _, criterion := range criteria {
				fmt.Fprintf(&builder, "- %s (weight %.2g)\n", criterion.Description, criterion.Weight)
			}
		}
	}

	if stage.Name == models.StageVocabulary {
		if constraints := question.Template.ConstraintList(); len(constraints) > 0 {
			builder.WriteString("\n\n")
			builder.WriteString(template.FormatConstraints("VALIDATION CRITERIA:", constraints))
		}
	}

	if len(prior) > 0 {
		builder.WriteString("\n\n## Earlier Checks\n")
		for _, p := range prior {
			fmt.Fprintf(&builder, "- %s: %s\n", p.Stage, p.Status)
		}
	}

	builder.WriteString("\n\nRespond with a JSON object of this exact shape: ")
	builder.WriteString(`{"passed": boolean, "score": number between 0 and 1, "feedback": string}`)
	builder.WriteString("\nReturn JSON only.")

	return template.Normalize(builder.String())
}

func stageInstruction(stage models.StageDescriptor, tmpl models.Template) string {
	if stage.Instruction != "" {
		return stage.Instruction
	}

	switch stage.Name {
	case models.StageContentRelevance:
		return "You are grading a student answer. Decide whether the answer actually addresses the question asked."
	case models.StageVocabulary:
		grade := tmpl.TargetGrade
		if grade == "" {
			grade = "the intended grade level"
		}
		return fmt.Sprintf("You are grading a student answer. Decide whether its vocabulary and tone are appropriate for %s.", grade)
	case models.StageRubricScoring:
		return "You are grading a student answer. Score it against each rubric criterion and justify the score."
	default:
		return fmt.Sprintf("You are grading a student answer. Evaluate the %s of the answer.", strings.ReplaceAll(stage.Name, "_", " "))
	}
}

// aggregate computes the weighted mean over stages that reached a verdict.
// Errored stages are excluded from the denominator; if nothing reached a
// verdict there is no judgment to report. Blocking failures never get here,
// they short-circuit in runPipeline.
func (s *validationService) aggregate(results []models.StageResult, passThreshold float64) models.ValidationResult {
	weights := s.stageWeights()

	var weightedSum, totalWeight, plainSum float64
	evaluated := 0

	for _, result := range results {
		if result.Status == models.StageStatusError {
			continue
		}

		evaluated++
		weightedSum += weights[result.Stage] * scoreOrZero(result.Score)
		totalWeight += weights[result.Stage]
		plainSum += scoreOrZero(result.Score)
	}

	if evaluated == 0 {
		return models.ValidationResult{
			Passed:       models.OutcomeInconclusive,
			StageResults: results,
			Feedback:     "no stage could be evaluated",
		}
	}

	var score float64
	if totalWeight > 0 {
		score = weightedSum / totalWeight
	} else {
		// Every judged stage carried zero weight; fall back to a plain mean.
		score = plainSum / float64(evaluated)
	}

	outcome := models.OutcomePassed
	if score < passThreshold {
		outcome = models.OutcomeFailed
	}

	return models.ValidationResult{
		Passed:       outcome,
		Score:        score,
		StageResults: results,
		Feedback:     joinFeedback(results),
	}
}

func abortedResult(results []models.StageResult) models.ValidationResult {
	return models.ValidationResult{
		Passed:       models.OutcomeInconclusive,
		StageResults: results,
		Feedback:     "validation aborted before completion",
		Aborted:      true,
	}
}

func (s *validationService) stageWeights() map[string]float64 {
	weights := make(map[string]float64, len(s.stages))
	for _, stage := range s.stages {
		weights[stage.Name] = stage.Weight
	}

	return weights
}

func answerRules(tmpl models.Template) constraint.Rules {
	var rules constraint.Rules
	if len(tmpl.AnswerSpace) == 0 {
		return rules
	}

	if err := json.Unmarshal(tmpl.AnswerSpace, &rules); err != nil {
		return constraint.Rules{}
	}

	return rules
}

func stageErrorFeedback(err error) string {
	switch {
	case errors.Is(err, llm.ErrModelTimeout):
		return "the evaluation model timed out"
	case errors.Is(err, llm.ErrModelUnavailable):
		return "the evaluation model is unavailable"
	default:
		return "the evaluation could not be completed"
	}
}

func joinFeedback(results []models.StageResult) string {
	var lines []string
	for _, result := range results {
		if result.Feedback == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", result.Stage, result.Feedback))
	}

	return strings.Join(lines, "\n")
}

func scorePtr(score float64) *float64 {
	return &score
}

func scoreOrZero(score *float64) float64 {
	if score == nil {
		return 0
	}

	return *score
}
