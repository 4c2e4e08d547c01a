package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError reports a model reply that could not be decoded into a classification.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid classification: %s: %v", e.Reason, e.Err)
	}
	return "invalid classification: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DecodeJSON leniently decodes the first top-level JSON object in a model reply. Code fences
// are stripped and the text between the first '{' and the last '}' is decoded.
func DecodeJSON(response string) (map[string]any, error) {
	text := strings.TrimSpace(response)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, &ValidationError{Reason: "no JSON object in response"}
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, &ValidationError{Reason: "malformed JSON", Err: err}
	}
	return out, nil
}
