package constraint

import (
	"fmt"
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`\b\w+\b`)

// Rules are the lightweight, deterministic checks an educator can attach to a
// template's answer space. They run locally, before any model stage.
type Rules struct {
	MinWords           int      `json:"minWords,omitempty"`
	MaxWords           int      `json:"maxWords,omitempty"`
	ProhibitedKeywords []string `json:"prohibitedKeywords,omitempty"`
	RequiredTopic      string   `json:"requiredTopic,omitempty"`
}

// Empty reports whether no rule is configured.
func (r Rules) Empty() bool {
	return r.MinWords == 0 && r.MaxWords == 0 && len(r.ProhibitedKeywords) == 0 && r.RequiredTopic == ""
}

// Report is the outcome of enforcing rules against one answer.
type Report struct {
	Passed     bool
	Violations []string
}

// Feedback joins the violations into reviewer-readable feedback.
func (r Report) Feedback() string {
	return strings.Join(r.Violations, "; ")
}

// Check applies every configured rule to the content. All rules are evaluated
// even after the first violation so feedback lists everything at once.
func Check(content string, rules Rules) Report {
	report := Report{Passed: true}

	words := wordPattern.FindAllString(content, -1)
	wordCount := len(words)

	if rules.MinWords > 0 && wordCount < rules.MinWords {
		report.violate(fmt.Sprintf("word count %d below minimum %d", wordCount, rules.MinWords))
	}

	if rules.MaxWords > 0 && wordCount > rules.MaxWords {
		report.violate(fmt.Sprintf("word count %d exceeds maximum %d", wordCount, rules.MaxWords))
	}

	for _, keyword := range rules.ProhibitedKeywords {
		if keyword == "" {
			continue
		}
		if containsWord(content, keyword) {
			report.violate(fmt.Sprintf("prohibited keyword %q found", keyword))
		}
	}

	if rules.RequiredTopic != "" && !topicPresent(content, rules.RequiredTopic) {
		report.violate(fmt.Sprintf("content does not address required topic %q", rules.RequiredTopic))
	}

	return report
}

func (r *Report) violate(message string) {
	r.Passed = false
	r.Violations = append(r.Violations, message)
}

// containsWord matches the keyword case-insensitively on word boundaries so
// "class" does not flag "classroom".
func containsWord(content, keyword string) bool {
	pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
	if err != nil {
		return false
	}

	return pattern.MatchString(content)
}

// topicPresent uses a keyword-overlap heuristic: at least one significant
// word of the topic must appear in the content.
func topicPresent(content, topic string) bool {
	haystack := strings.ToLower(content)
	for _, word := range wordPattern.FindAllString(strings.ToLower(topic), -1) {
		if len(word) < 3 {
			continue
		}
		if containsWord(haystack, word) {
			return true
		}
	}

	return false
}
