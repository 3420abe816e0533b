package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError is the typed failure for malformed generation-backend output.
// The synthesis stage treats it exactly like a backend failure: try the next
// tier, never abort the pipeline.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("response parse failed: %s", e.Reason)
}

// extractJSON pulls the outermost balanced JSON object out of free-form
// model output. Two-phase by design: locate the brace span first, then let
// encoding/json judge it. Models wrap JSON in markdown fences or prose
// often enough that naive unmarshaling of the whole response is hopeless.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", &ParseError{Reason: "no JSON object found", Raw: text}
	}

	// Scan for the matching close brace, ignoring braces inside strings.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// string content, braces don't count
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", &ParseError{Reason: "unbalanced braces in JSON object", Raw: text}
}

// generatedPayload is the JSON contract the generation backends are asked
// to produce. Every field except title and description is optional; the
// stage fills defaults for whatever the model omitted.
type generatedPayload struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	ShortDescription string   `json:"short_description"`
	BulletPoints     []string `json:"bullet_points"`
	SEO              struct {
		MetaTitle       string   `json:"meta_title"`
		MetaDescription string   `json:"meta_description"`
		Keywords        []string `json:"keywords"`
		Slug            string   `json:"slug"`
	} `json:"seo"`
	Category            string   `json:"category"`
	Tags                []string `json:"tags"`
	ConditionAssessment string   `json:"condition_assessment"`
	Confidence          float64  `json:"confidence"`
}

// parseGenerated runs the strict two-phase parse: extract the brace span,
// unmarshal, then validate the required fields. Any failure is a
// *ParseError so callers can tell "bad model output" apart from transport
// errors if they ever need to.
func parseGenerated(text string) (*generatedPayload, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var payload generatedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid JSON: %v", err), Raw: raw}
	}
	if strings.TrimSpace(payload.Title) == "" {
		return nil, &ParseError{Reason: "missing required field: title", Raw: raw}
	}
	if strings.TrimSpace(payload.Description) == "" {
		return nil, &ParseError{Reason: "missing required field: description", Raw: raw}
	}
	return &payload, nil
}
