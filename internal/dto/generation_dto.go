package dto

import (
	"time"

	"github.com/nalar-edu/nalar-api/internal/models"
)

// GenerateQuestionRequest asks the engine to produce a question from an
// authored template. Variables must cover every placeholder in the pattern.
type GenerateQuestionRequest struct {
	TemplateID uint              `json:"template_id" validate:"required"`
	Variables  map[string]string `json:"variables" validate:"required"`
	Context    string            `json:"context"`
	Language   string            `json:"language"`
}

// RubricResponse is the caller-facing rubric shape.
type RubricResponse struct {
	Criteria      []models.Criterion `json:"criteria"`
	PassThreshold float64            `json:"pass_threshold"`
	Synthetic     bool               `json:"synthetic"`
}

// QuestionResponse is returned after generation, rubric included.
type QuestionResponse struct {
	ID            string         `json:"id"`
	TemplateID    uint           `json:"template_id"`
	Text          string         `json:"text"`
	PromptContext string         `json:"prompt_context,omitempty"`
	Rubric        RubricResponse `json:"rubric"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewQuestionResponse maps the stored question and rubric onto the response.
func NewQuestionResponse(question models.Question, rubric models.Rubric) QuestionResponse {
	criteria, err := rubric.CriteriaList()
	if err != nil {
		criteria = nil
	}

	return QuestionResponse{
		ID:            question.ID,
		TemplateID:    question.TemplateID,
		Text:          question.Text,
		PromptContext: question.PromptContext,
		Rubric: RubricResponse{
			Criteria:      criteria,
			PassThreshold: rubric.PassThreshold,
			Synthetic:     rubric.Synthetic,
		},
		CreatedAt: question.CreatedAt,
	}
}
