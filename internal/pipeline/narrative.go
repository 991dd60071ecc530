package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cashium/finchat/internal/completion"
)

var narrativeSchema = completion.Schema{
	Name: "inference_response",
	Definition: json.RawMessage(`{
		"type": "object",
		"properties": {
			"response_text": {"type": "string", "description": "The generated response text in the requested output format."}
		},
		"required": ["response_text"],
		"additionalProperties": false
	}`),
	Required: []string{"response_text"},
}

func decodeNarrative(raw string) (string, error) {
	var out struct {
		ResponseText string `json:"response_text"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("decode narrative: %w", err)
	}
	text := strings.TrimSpace(out.ResponseText)
	if text == "" {
		return "", fmt.Errorf("narrative response is empty")
	}
	return text, nil
}
