package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Criterion is one weighted scoring dimension within a rubric. Weights are
// non-negative and need not sum to one; aggregation normalizes them.
type Criterion struct {
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
	MaxScore    float64 `json:"maxScore"`
}

// Rubric holds the weighted criteria and pass threshold derived once per
// question. Synthetic marks a fallback rubric built after the model reply
// could not be parsed.
type Rubric struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	QuestionID    string         `gorm:"size:36;not null;index" json:"question_id"`
	Criteria      datatypes.JSON `gorm:"type:json;not null" json:"criteria"`
	PassThreshold float64        `gorm:"not null" json:"pass_threshold"`
	Synthetic     bool           `gorm:"not null;default:false" json:"synthetic"`
	CreatedAt     time.Time      `json:"created_at"`
}

// CriteriaList decodes the stored criteria.
func (r Rubric) CriteriaList() ([]Criterion, error) {
	if len(r.Criteria) == 0 {
		return nil, nil
	}

	var criteria []Criterion
	if err := json.Unmarshal(r.Criteria, &criteria); err != nil {
		return nil, fmt.Errorf("decode rubric criteria: %w", err)
	}

	return criteria, nil
}

// SetCriteria encodes the criteria for storage.
func (r *Rubric) SetCriteria(criteria []Criterion) error {
	raw, err := json.Marshal(criteria)
	if err != nil {
		return fmt.Errorf("encode rubric criteria: %w", err)
	}

	r.Criteria = raw
	return nil
}

// NewSyntheticRubric builds the minimal fallback rubric used when rubric
// extraction exhausts every strategy.
func NewSyntheticRubric(questionID string, passThreshold float64) (Rubric, error) {
	rubric := Rubric{
		QuestionID:    questionID,
		PassThreshold: passThreshold,
		Synthetic:     true,
	}

	err := rubric.SetCriteria([]Criterion{
		{Description: "Overall answer quality", Weight: 1, MaxScore: 1},
	})
	if err != nil {
		return Rubric{}, err
	}

	return rubric, nil
}
