package models

// Well-known stage names. Local stages are evaluated without a model call.
const (
	StageConstraints      = "constraints"
	StageContentRelevance = "content_relevance"
	StageVocabulary       = "vocabulary"
	StageRubricScoring    = "rubric_scoring"
)

// StageDescriptor configures one evaluation step of the validation pipeline.
// Order in the configured list is execution order. A blocking stage that fails
// halts the remaining stages and decides the overall verdict.
type StageDescriptor struct {
	Name        string  `json:"name" validate:"required"`
	Blocking    bool    `json:"blocking"`
	Weight      float64 `json:"weight" validate:"gte=0"`
	Local       bool    `json:"local"`
	Instruction string  `json:"instruction,omitempty"`
}

// DefaultStages returns the reference pipeline: deterministic constraint
// checks first, then a blocking relevance gate, then vocabulary and rubric
// scoring.
func DefaultStages() []StageDescriptor {
	return []StageDescriptor{
		{Name: StageConstraints, Blocking: true, Weight: 0, Local: true},
		{Name: StageContentRelevance, Blocking: true, Weight: 0.4},
		{Name: StageVocabulary, Blocking: false, Weight: 0.2},
		{Name: StageRubricScoring, Blocking: false, Weight: 0.4},
	}
}
