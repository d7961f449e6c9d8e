package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Outcome is the overall verdict of a validation run. It serializes as a JSON
// boolean for passed/failed and as the string "inconclusive" when the system
// could not evaluate the answer, so callers can always tell a content
// judgment apart from an operational fault.
type Outcome string

const (
	OutcomePassed       Outcome = "passed"
	OutcomeFailed       Outcome = "failed"
	OutcomeInconclusive Outcome = "inconclusive"
)

// MarshalJSON renders the caller-facing boolean-or-"inconclusive" contract.
func (o Outcome) MarshalJSON() ([]byte, error) {
	switch o {
	case OutcomePassed:
		return []byte("true"), nil
	case OutcomeFailed:
		return []byte("false"), nil
	case OutcomeInconclusive:
		return []byte(`"inconclusive"`), nil
	default:
		return nil, fmt.Errorf("unknown outcome %q", string(o))
	}
}

// UnmarshalJSON accepts both the boolean and the string form.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*o = OutcomePassed
		} else {
			*o = OutcomeFailed
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode outcome: %w", err)
	}

	switch Outcome(s) {
	case OutcomePassed, OutcomeFailed, OutcomeInconclusive:
		*o = Outcome(s)
		return nil
	default:
		return fmt.Errorf("unknown outcome %q", s)
	}
}

// StageStatus distinguishes "evaluated and did not meet criteria" (failed)
// from "could not be evaluated" (error). The two must never be conflated.
type StageStatus string

const (
	StageStatusPassed StageStatus = "passed"
	StageStatusFailed StageStatus = "failed"
	StageStatusError  StageStatus = "error"
)

// StageResult records the outcome of one executed pipeline stage. Score is
// nil when the stage errored before producing one.
type StageResult struct {
	Stage            string      `json:"stage"`
	Status           StageStatus `json:"status"`
	Score            *float64    `json:"score"`
	Feedback         string      `json:"feedback"`
	ExtractionMethod string      `json:"extractionMethod"`
}

// ValidationResult is the aggregate verdict handed back to callers. It is
// created once per submission; re-validation produces a new result.
type ValidationResult struct {
	Passed       Outcome       `json:"passed"`
	Score        float64       `json:"score"`
	StageResults []StageResult `json:"stageResults"`
	Feedback     string        `json:"feedback"`
	Aborted      bool          `json:"aborted,omitempty"`
}

// ValidationRecord is the persisted, append-only form of a validation run.
type ValidationRecord struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	QuestionID   string         `gorm:"size:36;not null;index" json:"question_id"`
	Answer       string         `gorm:"type:text;not null" json:"answer"`
	Outcome      string         `gorm:"size:16;not null" json:"outcome"`
	Score        float64        `gorm:"not null" json:"score"`
	StageResults datatypes.JSON `gorm:"type:json" json:"stage_results"`
	Feedback     string         `gorm:"type:text" json:"feedback"`
	Aborted      bool           `gorm:"not null;default:false" json:"aborted"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewValidationRecord flattens a result for storage without losing shape.
func NewValidationRecord(id, questionID, answer string, result ValidationResult) (ValidationRecord, error) {
	stages, err := json.Marshal(result.StageResults)
	if err != nil {
		return ValidationRecord{}, fmt.Errorf("encode stage results: %w", err)
	}

	return ValidationRecord{
		ID:           id,
		QuestionID:   questionID,
		Answer:       answer,
		Outcome:      string(result.Passed),
		Score:        result.Score,
		StageResults: stages,
		Feedback:     result.Feedback,
		Aborted:      result.Aborted,
	}, nil
}

// Result reconstructs the caller-facing aggregate from a stored record.
func (r ValidationRecord) Result() (ValidationResult, error) {
	var stages []StageResult
	if len(r.StageResults) > 0 {
		if err := json.Unmarshal(r.StageResults, &stages); err != nil {
			return ValidationResult{}, fmt.Errorf("decode stage results: %w", err)
		}
	}

	return ValidationResult{
		Passed:       Outcome(r.Outcome),
		Score:        r.Score,
		StageResults: stages,
		Feedback:     r.Feedback,
		Aborted:      r.Aborted,
	}, nil
}
