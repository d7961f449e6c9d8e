package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Template is an educator-authored question pattern. Once a question has been
// generated from it the row is treated as read-only by the engine.
type Template struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Name               string         `gorm:"size:255;not null" json:"name"`
	Pattern            string         `gorm:"type:text;not null" json:"pattern"`
	Constraints        datatypes.JSON `gorm:"type:json" json:"constraints"`
	TargetGrade        string         `gorm:"size:32" json:"target_grade"`
	Subject            string         `gorm:"size:128" json:"subject"`
	LearningObjectives datatypes.JSON `gorm:"type:json" json:"learning_objectives"`
	AnswerSpace        datatypes.JSON `gorm:"type:json" json:"answer_space"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// ConstraintList decodes the stored constraint strings.
func (t Template) ConstraintList() []string {
	return decodeStringList(t.Constraints)
}

// ObjectiveList decodes the stored learning objectives.
func (t Template) ObjectiveList() []string {
	return decodeStringList(t.LearningObjectives)
}

func decodeStringList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}

	return list
}
