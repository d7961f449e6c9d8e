package dto

import (
	"time"

	"github.com/nalar-edu/nalar-api/internal/models"
)

// ValidateAnswerRequest submits a free-text student answer for evaluation
// against a previously generated question.
type ValidateAnswerRequest struct {
	QuestionID string `json:"question_id" validate:"required,uuid4"`
	Answer     string `json:"answer" validate:"required"`
}

// ValidationResponse is the stable caller-facing result contract. Passed
// serializes as true, false, or "inconclusive" regardless of which extraction
// method produced the underlying stage data.
type ValidationResponse struct {
	ID           string               `json:"id"`
	QuestionID   string               `json:"question_id"`
	Passed       models.Outcome       `json:"passed"`
	Score        float64              `json:"score"`
	StageResults []models.StageResult `json:"stageResults"`
	Feedback     string               `json:"feedback"`
	Aborted      bool                 `json:"aborted,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

// NewValidationResponse maps a completed run onto the response contract.
func NewValidationResponse(record models.ValidationRecord, result models.ValidationResult) ValidationResponse {
	return ValidationResponse{
		ID:           record.ID,
		QuestionID:   record.QuestionID,
		Passed:       result.Passed,
		Score:        result.Score,
		StageResults: result.StageResults,
		Feedback:     result.Feedback,
		Aborted:      result.Aborted,
		CreatedAt:    record.CreatedAt,
	}
}
