package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// BackendConfig describes one OpenAI-compatible completion backend.
// NativeSchema marks backends that enforce response_format json_schema
// server side; the rest get the schema injected into the prompt and the
// result is checked locally.
type BackendConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	NativeSchema bool
}

type backend struct {
	api          *openai.Client
	model        string
	nativeSchema bool
}

// OpenAIClient speaks to OpenAI-compatible chat completion APIs.
type OpenAIClient struct {
	backends map[Provider]backend
	logger   *slog.Logger

	attempts    int
	backoffBase time.Duration
	backoffCap  time.Duration
	callTimeout time.Duration
	errorHook   func(provider Provider, schema string)
}

type OpenAIOption func(*OpenAIClient)

func WithCallTimeout(d time.Duration) OpenAIOption {
	return func(c *OpenAIClient) { c.callTimeout = d }
}

// WithErrorHook registers a callback invoked once per failed provider
// call, including each failed retry attempt.
func WithErrorHook(hook func(provider Provider, schema string)) OpenAIOption {
	return func(c *OpenAIClient) { c.errorHook = hook }
}

func WithRetryPolicy(attempts int, base, cap time.Duration) OpenAIOption {
	return func(c *OpenAIClient) {
		c.attempts = attempts
		c.backoffBase = base
		c.backoffCap = cap
	}
}

func NewOpenAIClient(logger *slog.Logger, configs map[Provider]BackendConfig, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		backends:    make(map[Provider]backend, len(configs)),
		logger:      logger,
		attempts:    3,
		backoffBase: 200 * time.Millisecond,
		backoffCap:  2 * time.Second,
		callTimeout: 30 * time.Second,
	}
	for name, cfg := range configs {
		api := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			api.BaseURL = cfg.BaseURL
		}
		c.backends[name] = backend{
			api:          openai.NewClientWithConfig(api),
			model:        cfg.Model,
			nativeSchema: cfg.NativeSchema,
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	provider := req.Provider
	if provider == "" {
		provider = ProviderDeepSeek
	}
	b, ok := c.backends[provider]
	if !ok {
		return "", fmt.Errorf("unknown completion provider %q", provider)
	}

	model := req.Model
	if model == "" {
		model = b.model
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	apiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    buildMessages(req, b.nativeSchema),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if b.nativeSchema {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Schema.Name,
				Schema: req.Schema.Definition,
				Strict: true,
			},
		}
	} else {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	raw, err := withRetry(ctx, c.attempts, c.backoffBase, c.backoffCap, func() (string, error) {
		resp, err := b.api.CreateChatCompletion(ctx, apiReq)
		if err != nil {
			c.logger.WarnContext(ctx, "completion call failed",
				"provider", string(provider), "schema", req.Schema.Name, "error", err)
			if c.errorHook != nil {
				c.errorHook(provider, req.Schema.Name)
			}
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("provider %s returned no choices", provider)
		}
		return stripCodeFence(resp.Choices[0].Message.Content), nil
	})
	if err != nil {
		return "", fmt.Errorf("complete %s via %s: %w", req.Schema.Name, provider, err)
	}

	if err := validateResult(raw, req.Schema); err != nil {
		return "", fmt.Errorf("complete %s via %s: %w", req.Schema.Name, provider, err)
	}
	return raw, nil
}

func buildMessages(req Request, nativeSchema bool) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if !nativeSchema && len(req.Schema.Definition) > 0 {
		out = append(out, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem,
			Content: fmt.Sprintf(
				"Respond with a single JSON object matching this JSON Schema, with no extra text:\n%s",
				string(req.Schema.Definition)),
		})
	}
	return out
}

// stripCodeFence unwraps ```json fenced payloads that some backends emit
// despite the json_object response format.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
