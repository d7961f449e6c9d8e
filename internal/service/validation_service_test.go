package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/nalar-edu/nalar-api/internal/dto"
	"github.com/nalar-edu/nalar-api/internal/engine/extract"
	"github.com/nalar-edu/nalar-api/internal/models"
	"github.com/nalar-edu/nalar-api/internal/service"
	"github.com/nalar-edu/nalar-api/pkg/llm"
)

type validationFixture struct {
	svc        service.ValidationService
	records    *fakeValidationRepo
	questionID string
}

func newValidationFixture(gateway llm.Gateway, answerSpace string) validationFixture {
	questionID := uuid.NewString()

	tmpl := scienceTemplate()
	if answerSpace != "" {
		tmpl.AnswerSpace = datatypes.JSON(answerSpace)
	}

	questions := &fakeQuestionRepo{questions: map[string]models.Question{
		questionID: {
			ID:         questionID,
			TemplateID: tmpl.ID,
			Text:       "How do plants use sunlight to make their own food?",
			Template:   tmpl,
		},
	}}

	rubrics := &fakeRubricRepo{rubrics: map[string]models.Rubric{
		questionID: {
			QuestionID:    questionID,
			Criteria:      datatypes.JSON(`[{"description": "Overall answer quality", "weight": 1, "maxScore": 1}]`),
			PassThreshold: 0.6,
		},
	}}

	records := &fakeValidationRepo{}
	validate := validator.New(validator.WithRequiredStructEnabled())

	svc := service.NewValidationService(
		questions, rubrics, records, gateway, extract.New(), models.DefaultStages(), validate,
		service.ValidationOptions{Temperature: 0.1, MaxTokens: 256}, zerolog.Nop())

	return validationFixture{svc: svc, records: records, questionID: questionID}
}

func stageNames(results []models.StageResult) []string {
	names := make([]string, 0, len(results))
	for _, result := range results {
		names = append(names, result.Stage)
	}
	return names
}

func TestValidateAggregatesWeightedStageScores(t *testing.T) {
	gateway := &scriptedGateway{replies: []scriptedReply{
		{text: `{"passed": true, "score": 1.0, "feedback": "directly on topic"}`},
		{text: `{"passed": true, "score": 0.5}`},
		{text: `{"passed": true, "score": 0.75, "feedback": "covers the criterion"}`},
	}}
	fx := newValidationFixture(gateway, `{"minWords": 3}`)

	response, err := fx.svc.Validate(context.Background(), dto.ValidateAnswerRequest{
		QuestionID: fx.questionID,
		Answer:     "Plants capture sunlight and turn water and carbon dioxide into glucose.",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomePassed, response.Passed)
	assert.InDelta(t, 0.8, response.Score, 1e-9)
	assert.Equal(t,
		[]string{models.StageConstraints, models.StageContentRelevance, models.StageVocabulary, models.StageRubricScoring},
		stageNames(response.StageResults))
	assert.Equal(t, 3, gateway.callCount())
	assert.False(t, response.Aborted)

	// Rubric criteria feed the scoring stage prompt, nothing earlier.
	assert.Contains(t, gateway.prompt(2), "Overall answer quality")
	assert.NotContains(t, gateway.prompt(0), "Overall answer quality")

	require.Len(t, fx.records.records, 1)
	assert.Equal(t, string(models.OutcomePassed), fx.records.records[0].Outcome)

	raw, err := json.Marshal(response)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"passed":true`)
}

func TestValidateTwoStageWeightedMean(t *testing.T) {
	gateway := &scriptedGateway{replies: []scriptedReply{
		{text: `{"passed": true, "score": 0.9}`},
		{text: `{"passed": true, "score": 0.6}`},
	}}

	questionID := uuid.NewString()
	questions := &fakeQuestionRepo{questions: map[string]models.Question{
		questionID: {ID: questionID, Text: "Explain photosynthesis in terms of energy transformation.", Template: scienceTemplate()},
	}}
	rubrics := &fakeRubricRepo{rubrics: map[string]models.Rubric{
		questionID: {
			QuestionID:    questionID,
			Criteria:      datatypes.JSON(`[{"description": "Overall answer quality", "weight": 1, "maxScore": 1}]`),
			PassThreshold: 0.7,
		},
	}}

	stages := []models.StageDescriptor{
		{Name: models.StageContentRelevance, Blocking: true, Weight: 0.5},
		{Name: models.StageRubricScoring, Blocking: false, Weight: 0.5},
	}

	svc := service.NewValidationService(
		questions, rubrics, &fakeValidationRepo{}, gateway, extract.New(), stages,
		validator.New(validator.WithRequiredStructEnabled()),
		service.ValidationOptions{Temperature: 0.1, MaxTokens: 256}, zerolog.Nop())

	response, err := svc.Validate(context.Background(), dto.ValidateAnswerRequest{
		QuestionID: questionID,
		Answer:     "Light energy becomes chemical energy stored in glucose.",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomePassed, response.Passed)
	assert.InDelta(t, 0.75, response.Score, 1e-9)
}

func TestValidateBlockingFailureShortCircuits(t *testing.T) {
	gateway := &scriptedGateway{replies: []scriptedReply{
		{text: `{"passed": false, "score": 0.2, "feedback": "the answer ignores the question"}`},
	}}
	fx := newValidationFixture(gateway, "")

	response, err := fx.svc.Validate(context.Background(), dto.ValidateAnswerRequest{
		QuestionID: fx.questionID,
		Answer:     "My favourite animal is the capuchin monkey.",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFailed, response.Passed)
	assert.InDelta(t, 0.2, response.Score, 1e-9)
	assert.Equal(t, "the answer ignores the question", response.Feedback)
	assert.Equal(t, 1, gateway.callCount())
	assert.Equal(t, []string{models.StageContentRelevance}, stageNames(response.StageResults))

	raw, err := json.Marshal(response)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"passed":false`)
}

func TestValidateBlockingErrorIsInconclusive(t *testing.T) {
	gateway := &scriptedGateway{replies: []scriptedReply{
		{err: llm.ErrModelTimeout},
	}}
	fx := newValidationFixture(gateway, "")

	response, err := fx.svc.Validate(context.Background(), dto.ValidateAnswerRequest{
		QuestionID: fx.questionID,
		Answer:     "Plants make food from sunlight.",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeInconclusive, response.Passed)
	assert.Equal(t, 1, gateway.callCount())

	require.Len(t, response.StageResults, 1)
	stage := response.StageResults[0]
	assert.Equal(t, models.StageStatusError, stage.Status)
	assert.Nil(t, stage.Score)
	assert.Equal(t, "none", stage.ExtractionMethod)

	require.Len(t, fx.records.records, 1)
	assert.Equal(t, string(models.OutcomeInconclusive), fx.records.records[0].Outcome)

	raw, err := json.Marshal(response)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"passed":"inconclusive"`)
}

func TestValidateUnparseableBlockingReplyIsInconclusive(t *testing.T) {
	gateway := &scriptedGateway{replies: []scriptedReply{
		{text: "lorem ipsum dolor sit amet"},
	}}
	fx := newValidationFixture(gateway, "")

	response, err := fx.svc.Validate(context.Background(), dto.ValidateAnswerRequest{
		QuestionID: fx.questionID,
		Answer:     "Plants make food from sunlight.",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeInconclusive, response.Passed)
	require.Len(t, response.StageResults, 1)
	assert.Equal(t, models.StageStatusError, response.StageResults[0].Status)
}

func TestValidateExcludesErroredStagesFromAggregate(t *testing.T) {
	gateway := &scriptedGateway{replies: []scriptedReply{
		{text: `{"passed": true, "score": 1.0}`},
		{err: llm.ErrModelUnavailable},
		{text: `{"passed": true, "score": 0.75}`},
	}}
	fx := newValidationFixture(gateway, "")

	response, err := fx.svc.Validate(context.Background(), dto.ValidateAnswerRequest{
		QuestionID: fx.questionID,
		Answer:     "Plants capture sunlight and turn it into glucose.",
	})
	require.NoError(t, err)

	// vocabulary errored: (0.4*1 + 0.4*0.75) / 0.8
	assert.Equal(t, models.OutcomePassed, response.Passed)
	assert.InDelta(t, 0.875, response.Score, 1e-9)

	require.Len(t, response.StageResults, 3)
	assert.Equal(t, models.StageStatusError, response.StageResults[1].Status)
}

func TestValidateConstraintViolationFailsLocally(t *testing.T) {
	gateway := &scriptedGateway{}
	fx := newValidationFixture(gateway, `{"minWords": 10, "prohibitedKeywords": ["dumb"]}`)

	response, err := fx.svc.Validate(context.Background(), dto.ValidateAnswerRequest{
		QuestionID: fx.questionID,
		Answer:     "this is dumb",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFailed, response.Passed)
	assert.Zero(t, gateway.callCount())

	require.Len(t, response.StageResults, 1)
	stage := response.StageResults[0]
	assert.Equal(t, models.StageConstraints, stage.Stage)
	assert.Equal(t, models.StageStatusFailed, stage.Status)
	assert.Equal(t, "deterministic", stage.ExtractionMethod)
	assert.Contains(t, stage.Feedback, "below minimum")
	assert.Contains(t, stage.Feedback, `"dumb"`)
}

func TestValidateSkipsConstraintStageWithoutRules(t *testing.T) {
	gateway := &scriptedGateway{replies: []scriptedReply{
		{text: `{"passed": true, "score": 1.0}`},
		{text: `{"passed": true, "score": 1.0}`},
		{text: `{"passed": true, "score": 1.0}`},
	}}
	fx := newValidationFixture(gateway, "")

	response, err := fx.svc.Validate(context.Background(), dto.ValidateAnswerRequest{
		QuestionID: fx.questionID,
		Answer:     "Plants capture sunlight and turn it into glucose.",
	})
	require.NoError(t, err)

	assert.NotContains(t, stageNames(response.StageResults), models.StageConstraints)
	assert.Len(t, response.StageResults, 3)
}

type cancelingGateway struct {
	inner  *scriptedGateway
	cancel context.CancelFunc
}

func (g *cancelingGateway) Complete(ctx context.Context, prompt string, params llm.Params) (string, error) {
	reply, err := g.inner.Complete(ctx, prompt, params)
	g.cancel()
	return reply, err
}

func (g *cancelingGateway) IsAvailable(ctx context.Context) bool {
	return g.inner.IsAvailable(ctx)
}

func TestValidateAbortPreservesCompletedStages(t *testing.T) {
	inner := &scriptedGateway{replies: []scriptedReply{
		{text: `{"passed": true, "score": 1.0, "feedback": "on topic"}`},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	gateway := &cancelingGateway{inner: inner, cancel: cancel}
	fx := newValidationFixture(gateway, "")

	response, err := fx.svc.Validate(ctx, dto.ValidateAnswerRequest{
		QuestionID: fx.questionID,
		Answer:     "Plants capture sunlight and turn it into glucose.",
	})
	require.NoError(t, err)

	assert.True(t, response.Aborted)
	assert.Equal(t, models.OutcomeInconclusive, response.Passed)
	assert.Equal(t, []string{models.StageContentRelevance}, stageNames(response.StageResults))
	assert.Equal(t, 1, inner.callCount())

	// The partial run still lands in storage.
	require.Len(t, fx.records.records, 1)
	assert.True(t, fx.records.records[0].Aborted)
}

func TestValidateQuestionNotFound(t *testing.T) {
	fx := newValidationFixture(&scriptedGateway{}, "")

	_, err := fx.svc.Validate(context.Background(), dto.ValidateAnswerRequest{
		QuestionID: uuid.NewString(),
		Answer:     "an answer",
	})

	require.ErrorIs(t, err, service.ErrQuestionNotFound)
	assert.Empty(t, fx.records.records)
}
