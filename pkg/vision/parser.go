package vision

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ResponseParser turns a model's text answer into a Verdict for a known number of criteria.
// Schema-constrained providers can supply their own implementation.
type ResponseParser interface {
	Parse(text string, criteriaCount int) (Verdict, error)
}

// JSONVerdictParser parses free text that should contain a single JSON verdict.
type JSONVerdictParser struct{}

// Parse strips markdown fences, decodes the verdict and enforces that there is exactly one
// result per criterion. Every failure wraps ErrParseFailure.
func (JSONVerdictParser) Parse(text string, criteriaCount int) (Verdict, error) {
	body := extractJSONObject(stripCodeFence(text))
	if body == "" {
		return Verdict{}, fmt.Errorf("%w: no JSON object in response", ErrParseFailure)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(body), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	if verdict.CriteriaResults == nil {
		return Verdict{}, fmt.Errorf("%w: criteriaResults is missing", ErrParseFailure)
	}
	if len(verdict.CriteriaResults) != criteriaCount {
		return Verdict{}, fmt.Errorf("%w: expected %d criteria results, got %d",
			ErrParseFailure, criteriaCount, len(verdict.CriteriaResults))
	}

	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}
	return verdict, nil
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```")
	if newline := strings.Index(content, "\n"); newline != -1 {
		// drop the info string, e.g. ```json
		content = content[newline+1:]
	}
	if end := strings.LastIndex(content, "```"); end != -1 {
		content = content[:end]
	}
	return strings.TrimSpace(content)
}

func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return ""
	}
	return content[start : end+1]
}
