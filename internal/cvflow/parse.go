package cvflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GenerationFormatError reports that the generator's output for a step could
// not be parsed into the expected JSON shape. The step does not advance; the
// user is asked to rephrase.
type GenerationFormatError struct {
	Step Step
	Err  error
}

func (e *GenerationFormatError) Error() string {
	return fmt.Sprintf("step %s: unparseable generation output: %v", e.Step, e.Err)
}

func (e *GenerationFormatError) Unwrap() error {
	return e.Err
}

// parseStepPayload extracts the first balanced JSON object from the raw
// generator output and unmarshals it.
func parseStepPayload(step Step, raw string) (map[string]any, error) {
	extracted := extractJSON(raw)
	if extracted == "" {
		return nil, &GenerationFormatError{Step: step, Err: fmt.Errorf("no JSON object found")}
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(extracted), &payload); err != nil {
		return nil, &GenerationFormatError{Step: step, Err: err}
	}

	if len(payload) == 0 {
		return nil, &GenerationFormatError{Step: step, Err: fmt.Errorf("empty JSON object")}
	}

	return payload, nil
}

// extractJSON returns the first balanced JSON object embedded in raw,
// tolerating markdown code fences and surrounding prose.
func extractJSON(raw string) string {
	raw = stripFences(raw)

	start := strings.IndexByte(raw, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]

		if escaped {
			escaped = false
			continue
		}

		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1]
				}
			}
		}
	}

	return ""
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}
