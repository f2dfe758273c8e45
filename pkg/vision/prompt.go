package vision

import (
	"fmt"
	"strings"
)

// BuildPrompt renders the grading instructions for one screenshot.
func BuildPrompt(req Request) string {
	var builder strings.Builder

	builder.WriteString("You are verifying whether an automated browser action succeeded, using only the attached screenshot.\n\n")
	builder.WriteString(fmt.Sprintf("Action performed: %s\n", strings.TrimSpace(req.Action)))
	if req.ExpectedURL != "" {
		builder.WriteString(fmt.Sprintf("Expected URL: %s\n", req.ExpectedURL))
	}
	if req.ExpectedText != "" {
		builder.WriteString(fmt.Sprintf("Expected visible text: %s\n", req.ExpectedText))
	}

	builder.WriteString("\nSuccess criteria:\n")
	for i, criterion := range req.Criteria {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, criterion))
	}

	builder.WriteString("\nGrading rules:\n")
	builder.WriteString("- Mark a criterion true only when the screenshot shows clear visual evidence for it.\n")
	builder.WriteString("- Do not infer or guess. If something is not visible, the criterion is false.\n")
	builder.WriteString("- A blank, loading or error page fails every criterion.\n")
	builder.WriteString(fmt.Sprintf("- criteriaResults must contain exactly %d booleans, in the order listed above.\n", len(req.Criteria)))

	builder.WriteString("\nRespond with ONLY a JSON object, no prose and no markdown, with these fields:\n")
	builder.WriteString(`{"criteriaResults": [true|false, ...], "overallSuccess": true|false, "whatISee": "short description of the screenshot", `)
	builder.WriteString(`"matchedCriteria": ["..."], "failedCriteria": ["..."], "confidence": 0.0-1.0, "evidenceDetails": "what in the image supports the verdict"}`)
	builder.WriteString("\n")

	return builder.String()
}
