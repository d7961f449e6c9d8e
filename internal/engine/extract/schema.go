package extract

import "github.com/santhosh-tekuri/jsonschema/v5"

const stageResultSchemaJSON = `{
	"type": "object",
	"properties": {
		"passed": {"type": "boolean"},
		"score": {"type": "number", "minimum": 0, "maximum": 1},
		"feedback": {"type": "string"}
	},
	"required": ["passed", "score"]
}`

const rubricSchemaJSON = `{
	"type": "object",
	"properties": {
		"criteria": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"description": {"type": "string"},
					"weight": {"type": "number", "minimum": 0},
					"maxScore": {"type": "number"}
				},
				"required": ["description"]
			}
		},
		"passThreshold": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["criteria"]
}`

var (
	// StageResultSchema describes the {passed, score, feedback} reply every
	// model-backed validation stage is asked to produce.
	StageResultSchema = jsonschema.MustCompileString("stage_result.json", stageResultSchemaJSON)

	// RubricSchema describes the {criteria, passThreshold} reply requested
	// during rubric generation.
	RubricSchema = jsonschema.MustCompileString("rubric.json", rubricSchemaJSON)
)
