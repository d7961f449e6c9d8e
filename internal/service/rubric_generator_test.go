package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nalar-edu/nalar-api/internal/engine/extract"
	"github.com/nalar-edu/nalar-api/internal/models"
	"github.com/nalar-edu/nalar-api/internal/service"
)

func newRubricGenerator(gateway *scriptedGateway) service.RubricGenerator {
	return service.NewRubricGenerator(gateway, extract.New(), service.RubricOptions{
		Temperature:      0.1,
		MaxTokens:        256,
		DefaultThreshold: 0.6,
	}, zerolog.Nop())
}

func TestGenerateRubricDecodesReply(t *testing.T) {
	gateway := &scriptedGateway{replies: []scriptedReply{{text: rubricReply}}}
	gen := newRubricGenerator(gateway)

	rubric, err := gen.GenerateRubric(context.Background(), models.Question{ID: "q1", Text: "Explain photosynthesis."}, scienceTemplate())
	require.NoError(t, err)

	criteria, err := rubric.CriteriaList()
	require.NoError(t, err)
	require.Len(t, criteria, 2)
	assert.Equal(t, "Names light as an input", criteria[0].Description)
	assert.Equal(t, float64(2), criteria[0].Weight)
	assert.Equal(t, 0.7, rubric.PassThreshold)
	assert.False(t, rubric.Synthetic)

	prompt := gateway.prompt(0)
	assert.Contains(t, prompt, "Explain photosynthesis.")
	assert.Contains(t, prompt, "LEARNING OBJECTIVES:")
}

func TestGenerateRubricAppliesCriterionDefaults(t *testing.T) {
	gateway := &scriptedGateway{replies: []scriptedReply{
		{text: `{"criteria": [{"description": "Covers the main idea"}, {"description": "   "}], "passThreshold": 3}`},
	}}
	gen := newRubricGenerator(gateway)

	rubric, err := gen.GenerateRubric(context.Background(), models.Question{ID: "q1"}, models.Template{})
	require.NoError(t, err)

	criteria, err := rubric.CriteriaList()
	require.NoError(t, err)
	require.Len(t, criteria, 1)
	assert.Equal(t, float64(1), criteria[0].Weight)
	assert.Equal(t, float64(1), criteria[0].MaxScore)
	assert.Equal(t, 0.6, rubric.PassThreshold)
}

func TestGenerateRubricSyntheticFallbackOnTerminalReply(t *testing.T) {
	gateway := &scriptedGateway{replies: []scriptedReply{{text: "lorem ipsum dolor sit amet"}}}
	gen := newRubricGenerator(gateway)

	rubric, err := gen.GenerateRubric(context.Background(), models.Question{ID: "q1"}, models.Template{})
	require.NoError(t, err)

	assert.True(t, rubric.Synthetic)
	assert.Equal(t, "q1", rubric.QuestionID)
	assert.Equal(t, 0.6, rubric.PassThreshold)
}

func TestGenerateRubricPropagatesGatewayErrors(t *testing.T) {
	wantErr := errors.New("connection refused")
	gateway := &scriptedGateway{replies: []scriptedReply{{err: wantErr}}}
	gen := newRubricGenerator(gateway)

	_, err := gen.GenerateRubric(context.Background(), models.Question{ID: "q1"}, models.Template{})
	require.ErrorIs(t, err, wantErr)
}
