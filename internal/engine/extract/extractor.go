package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Confidence grades how trustworthy an extraction is. None marks the terminal
// sentinel; it is a valid return value, never an error.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
	ConfidenceNone Confidence = "none"
)

// Strategy names, reported on results and usable as disable flags.
const (
	MethodStrictJSON     = "strict_json"
	MethodMarkdownFence  = "markdown_fence"
	MethodBalancedScan   = "balanced_scan"
	MethodPermissiveJSON = "permissive_json"
	MethodHeuristicText  = "heuristic_text"
	MethodNone           = "none"
)

// Result is the canonical outcome of an extraction attempt.
type Result struct {
	Data       map[string]interface{}
	Method     string
	Confidence Confidence
}

// Terminal reports whether every strategy was exhausted.
func (r Result) Terminal() bool {
	return r.Confidence == ConfidenceNone
}

// Extractor recovers structured data from free-text model replies through a
// cascade of increasingly permissive strategies. Same input always yields the
// same result; no strategy ever propagates a parse error.
type Extractor struct {
	disabled map[string]struct{}
}

// Option customises extractor construction.
type Option func(*Extractor)

// WithDisabledStrategies switches off individual cascade strategies by name.
func WithDisabledStrategies(names []string) Option {
	return func(e *Extractor) {
		for _, name := range names {
			e.disabled[name] = struct{}{}
		}
	}
}

// New builds an extractor with every strategy enabled unless disabled by
// option.
func New(opts ...Option) *Extractor {
	e := &Extractor{disabled: make(map[string]struct{})}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

var (
	fencePattern = regexp.MustCompile("(?s)```(?:[a-zA-Z]*\\n)?(.*?)```")

	singleQuoted  = regexp.MustCompile(`'([^']*)'`)
	unquotedKeys  = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)

	failSignal  = regexp.MustCompile(`(?i)\b(fail|failed|invalid|incorrect|wrong|rejected|false|no)\b`)
	passSignal  = regexp.MustCompile(`(?i)\b(pass|passed|valid|correct|accepted|true|yes)\b`)
	scoreSignal = regexp.MustCompile(`(?i)\b(?:score|rating|grade|mark)\b\s*(?:is|of)?\s*[:=]?\s*(\d+(?:\.\d+)?\s*/\s*\d+(?:\.\d+)?|\d+(?:\.\d+)?%|\d+(?:\.\d+)?)`)
	bareDecimal = regexp.MustCompile(`(?:^|[\s(])(0?\.\d+|1\.0|[01])(?:[\s).,]|$)`)
)

// Extract runs the cascade against raw model output. When schema is non-nil
// the normalized data is validated against it: a clean parse that satisfies
// the schema is high confidence, anything recovered otherwise is low.
func (e *Extractor) Extract(raw string, schema *jsonschema.Schema) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{Method: MethodNone, Confidence: ConfidenceNone}
	}

	type strategy struct {
		name  string
		parse func(string) (map[string]interface{}, bool)
	}

	strategies := []strategy{
		{MethodStrictJSON, parseStrict},
		{MethodMarkdownFence, parseMarkdownFence},
		{MethodBalancedScan, parseBalancedScan},
		{MethodPermissiveJSON, parsePermissive},
	}

	for _, s := range strategies {
		if e.strategyDisabled(s.name) {
			continue
		}

		data, ok := s.parse(trimmed)
		if !ok {
			continue
		}

		normalized := Normalize(data)
		confidence := ConfidenceLow
		if schema == nil || schema.Validate(toSchemaValue(normalized)) == nil {
			confidence = ConfidenceHigh
		}

		return Result{Data: normalized, Method: s.name, Confidence: confidence}
	}

	if !e.strategyDisabled(MethodHeuristicText) {
		if data, ok := parseHeuristic(trimmed); ok {
			return Result{Data: data, Method: MethodHeuristicText, Confidence: ConfidenceLow}
		}
	}

	return Result{Method: MethodNone, Confidence: ConfidenceNone}
}

func (e *Extractor) strategyDisabled(name string) bool {
	_, ok := e.disabled[name]
	return ok
}

func parseStrict(text string) (map[string]interface{}, bool) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, false
	}

	return data, true
}

func parseMarkdownFence(text string) (map[string]interface{}, bool) {
	for _, match := range fencePattern.FindAllStringSubmatch(text, -1) {
		candidate := strings.TrimSpace(match[1])
		if candidate == "" {
			continue
		}

		if data, ok := parseStrict(candidate); ok {
			return data, true
		}
	}

	return nil, false
}

// parseBalancedScan walks the text counting brace depth, string-aware, and
// strict-parses the first balanced {...} substring it finds.
func parseBalancedScan(text string) (map[string]interface{}, bool) {
	for start := 0; start < len(text); {
		open := strings.IndexByte(text[start:], '{')
		if open < 0 {
			return nil, false
		}
		open += start

		if candidate, ok := balancedSubstring(text, open); ok {
			if data, parsed := parseStrict(candidate); parsed {
				return data, true
			}
		}

		start = open + 1
	}

	return nil, false
}

func balancedSubstring(text string, open int) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := open; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[open : i+1], true
			}
		}
	}

	return "", false
}

// parsePermissive repairs the most common malformations of small models:
// single quotes, unquoted keys, Python-style literals, trailing commas.
func parsePermissive(text string) (map[string]interface{}, bool) {
	candidate := text
	if sub, ok := firstBraceSpan(text); ok {
		candidate = sub
	}

	fixed := singleQuoted.ReplaceAllString(candidate, `"$1"`)
	fixed = unquotedKeys.ReplaceAllString(fixed, `$1"$2":`)
	fixed = strings.ReplaceAll(fixed, "True", "true")
	fixed = strings.ReplaceAll(fixed, "False", "false")
	fixed = strings.ReplaceAll(fixed, "None", "null")
	fixed = trailingComma.ReplaceAllString(fixed, "$1")

	return parseStrict(fixed)
}

func firstBraceSpan(text string) (string, bool) {
	open := strings.IndexByte(text, '{')
	if open < 0 {
		return "", false
	}

	closing := strings.LastIndexByte(text, '}')
	if closing <= open {
		return "", false
	}

	return text[open : closing+1], true
}

// parseHeuristic scans for strong lexical signals when no structure parses at
// all. Fail tokens win over pass tokens so an ambiguous reply never reads as
// an endorsement.
func parseHeuristic(text string) (map[string]interface{}, bool) {
	data := make(map[string]interface{})

	switch {
	case failSignal.MatchString(text):
		data["passed"] = false
	case passSignal.MatchString(text):
		data["passed"] = true
	}

	if match := scoreSignal.FindStringSubmatch(text); match != nil {
		if score, ok := coerceScore(match[1]); ok {
			data["score"] = score
		}
	} else if match := bareDecimal.FindStringSubmatch(text); match != nil {
		if score, ok := coerceScore(match[1]); ok {
			data["score"] = score
		}
	}

	if len(data) == 0 {
		return nil, false
	}

	return data, true
}

// canonicalFields drives synonym normalization in a fixed order so the same
// input always maps to the same canonical shape.
var canonicalFields = []struct {
	name     string
	synonyms []string
}{
	{"passed", []string{"passed", "isValid", "is_valid", "valid", "ok", "correct"}},
	{"score", []string{"score", "rating", "grade", "points", "mark"}},
	{"feedback", []string{"feedback", "comment", "comments", "explanation", "reason", "reasoning"}},
}

// Normalize maps known field-name synonyms onto the canonical keys and
// coerces their values into the expected types. Unknown keys pass through
// untouched.
func Normalize(data map[string]interface{}) map[string]interface{} {
	normalized := make(map[string]interface{}, len(data))
	for k, v := range data {
		normalized[k] = v
	}

	for _, field := range canonicalFields {
		for _, synonym := range field.synonyms {
			value, ok := normalized[synonym]
			if !ok {
				continue
			}

			if synonym != field.name {
				delete(normalized, synonym)
			}
			normalized[field.name] = value
			break
		}
	}

	if value, ok := normalized["passed"]; ok {
		if passed, valid := coercePassed(value); valid {
			normalized["passed"] = passed
		}
	}

	if value, ok := normalized["score"]; ok {
		if score, valid := coerceScoreValue(value); valid {
			normalized["score"] = score
		}
	}

	if value, ok := normalized["feedback"]; ok {
		if _, isString := value.(string); !isString {
			normalized["feedback"] = fmt.Sprintf("%v", value)
		}
	}

	return normalized
}

func coercePassed(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "1", "t", "pass", "passed":
			return true, true
		case "false", "no", "n", "0", "f", "fail", "failed":
			return false, true
		}
		return false, false
	case float64:
		return v != 0, true
	default:
		return false, false
	}
}

func coerceScoreValue(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return normalizeScale(v), true
	case string:
		return coerceScore(v)
	default:
		return 0, false
	}
}

// coerceScore accepts plain numbers, fractions like "7/10" and percentages,
// and normalizes everything onto [0,1].
func coerceScore(raw string) (float64, bool) {
	text := strings.TrimSpace(raw)

	if num, denom, ok := strings.Cut(text, "/"); ok {
		n, errN := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, errD := strconv.ParseFloat(strings.TrimSpace(denom), 64)
		if errN != nil || errD != nil || d == 0 {
			return 0, false
		}
		return clamp01(n / d), true
	}

	if strings.HasSuffix(text, "%") {
		p, err := strconv.ParseFloat(strings.TrimSuffix(text, "%"), 64)
		if err != nil {
			return 0, false
		}
		return clamp01(p / 100), true
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}

	return normalizeScale(f), true
}

// normalizeScale maps scores reported on 1-10 or percentage scales onto [0,1].
func normalizeScale(score float64) float64 {
	switch {
	case score > 1 && score <= 10:
		return score / 10
	case score > 10 && score <= 100:
		return score / 100
	default:
		return clamp01(score)
	}
}

func clamp01(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}

	return score
}

// toSchemaValue round-trips the map through JSON so number types match what
// the schema validator expects regardless of how a strategy produced them.
func toSchemaValue(data map[string]interface{}) interface{} {
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}

	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return data
	}

	return value
}
