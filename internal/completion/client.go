package completion

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider selects a completion backend per call.
type Provider string

const (
	ProviderDeepSeek  Provider = "deepseek"
	ProviderDeepInfra Provider = "deepinfra"
)

// Message is one prompt entry.
type Message struct {
	Role    string
	Content string
}

// Schema describes the JSON object a call must return. Definition is a
// JSON Schema document; Required lists the top-level keys checked when
// the backend cannot enforce the schema natively.
type Schema struct {
	Name       string
	Definition json.RawMessage
	Required   []string
}

// Request is one structured completion call.
type Request struct {
	Messages    []Message
	Schema      Schema
	Provider    Provider
	Model       string
	Temperature float32
	MaxTokens   int
}

// Client returns a JSON document matching the request schema. Malformed
// output and provider failures are hard errors for the call.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// validateResult confirms the payload is a JSON object carrying every
// required top-level key.
func validateResult(raw string, schema Schema) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return fmt.Errorf("completion is not a JSON object: %w", err)
	}
	for _, key := range schema.Required {
		if _, ok := obj[key]; !ok {
			return fmt.Errorf("completion missing required key %q", key)
		}
	}
	return nil
}
