package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled patterns. Models wrap JSON in code fences more often than not,
// and occasionally leave trailing commas.
var (
	codeFenceRegex     = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\n?([\\s\\S]*?)\n?`{3}")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// ExtractJSON unmarshals a JSON object out of a model response, trying the
// raw text first, then the contents of a code fence, then the outermost
// brace-delimited span. Trailing commas are stripped before each attempt.
func ExtractJSON(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("empty response")
	}

	candidates := []string{trimmed}
	if m := codeFenceRegex.FindStringSubmatch(trimmed); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := objectRegex.FindString(trimmed); m != "" {
		candidates = append(candidates, m)
	}

	var lastErr error
	for _, candidate := range candidates {
		cleaned := trailingCommaRegex.ReplaceAllString(candidate, "$1")
		if err := json.Unmarshal([]byte(cleaned), v); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	preview := trimmed
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	return fmt.Errorf("no parseable JSON in response (%q): %w", preview, lastErr)
}
