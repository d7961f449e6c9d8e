package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)
	spaceRuns          = regexp.MustCompile(`[ \t]+`)
	blankLineRuns      = regexp.MustCompile(`\n\s*\n`)
)

// MissingVariableError reports every placeholder that had no corresponding
// variable. Substitution is all-or-nothing; no partially substituted prompt
// is ever returned.
type MissingVariableError struct {
	Keys []string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("missing template variables: %s", strings.Join(e.Keys, ", "))
}

// Substitute replaces every {name} token in pattern with the matching entry
// from vars. Brace characters inside substituted values are escaped, not
// stripped, so author content survives without breaking the surrounding
// prompt structure.
func Substitute(pattern string, vars map[string]string) (string, error) {
	var missing []string
	for _, name := range Placeholders(pattern) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &MissingVariableError{Keys: missing}
	}

	result := placeholderPattern.ReplaceAllStringFunc(pattern, func(token string) string {
		name := token[1 : len(token)-1]
		return escapeDelimiters(vars[name])
	})

	return result, nil
}

// Placeholders returns the distinct placeholder names in pattern, in order of
// first appearance. Backslash-escaped braces are not placeholders.
func Placeholders(pattern string) []string {
	var names []string
	seen := make(map[string]struct{})

	for _, match := range placeholderPattern.FindAllStringSubmatchIndex(pattern, -1) {
		start := match[0]
		if start > 0 && pattern[start-1] == '\\' {
			continue
		}

		name := pattern[match[2]:match[3]]
		if _, ok := seen[name]; ok {
			continue
		}

		seen[name] = struct{}{}
		names = append(names, name)
	}

	return names
}

// FormatConstraints renders author constraints as the bulleted block appended
// to generation and validation prompts.
func FormatConstraints(heading string, constraints []string) string {
	if len(constraints) == 0 {
		return ""
	}

	if heading == "" {
		heading = "CONSTRAINTS:"
	}

	return fmt.Sprintf("%s\n- %s", heading, strings.Join(constraints, "\n- "))
}

// Normalize collapses runs of spaces and blank lines to keep composed prompts
// inside tight edge-model context windows.
func Normalize(text string) string {
	normalized := spaceRuns.ReplaceAllString(text, " ")
	normalized = blankLineRuns.ReplaceAllString(normalized, "\n\n")
	return strings.TrimSpace(normalized)
}

func escapeDelimiters(value string) string {
	escaped := strings.ReplaceAll(value, "{", `\{`)
	return strings.ReplaceAll(escaped, "}", `\}`)
}
