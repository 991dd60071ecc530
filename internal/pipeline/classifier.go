package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/cashium/finchat/internal/chat"
	"github.com/cashium/finchat/internal/completion"
)

// Category is one classification label. The fixed labels below are always
// available; catalog offer types extend the set per country so that
// classification and catalog content stay in lockstep.
type Category string

const (
	CategoryDanger           Category = "danger"
	CategoryLoan             Category = "loan"
	CategoryCreditCard       Category = "credit_card"
	CategoryDebitCard        Category = "debit_card"
	CategoryBankAccount      Category = "bank_account"
	CategoryFinance          Category = "finance"
	CategoryCurrencyExchange Category = "currency_exchange"
	CategoryOther            Category = "other"
)

var fixedCategories = []Category{
	CategoryDanger,
	CategoryLoan,
	CategoryCreditCard,
	CategoryDebitCard,
	CategoryBankAccount,
	CategoryFinance,
	CategoryCurrencyExchange,
	CategoryOther,
}

// Verdict is the classifier's structured output. It only routes control
// flow and is never persisted.
type Verdict struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Language   string   `json:"language"`
}

// contextWindow bounds how many recent messages accompany the latest
// user message in classifier and summarizer prompts.
const contextWindow = 8

// Classifier produces a safety verdict and a coarse topic category for
// the latest user message.
type Classifier struct {
	client completion.Client
}

func NewClassifier(client completion.Client) *Classifier {
	return &Classifier{client: client}
}

// Classify runs the safety and intent check. extraTypes is the dynamic
// offer-type vocabulary for the active country. Any provider failure or
// an out-of-vocabulary label is an error; the caller must treat that as
// cannot-proceed, never as safe.
func (c *Classifier) Classify(ctx context.Context, conv chat.Chat, message string, extraTypes []string) (Verdict, error) {
	allowed := make([]string, 0, len(fixedCategories)+len(extraTypes))
	for _, cat := range fixedCategories {
		allowed = append(allowed, string(cat))
	}
	for _, t := range extraTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !lo.Contains(allowed, t) {
			allowed = append(allowed, t)
		}
	}

	schema, err := verdictSchema(allowed)
	if err != nil {
		return Verdict{}, err
	}

	messages := []completion.Message{{
		Role: "system",
		Content: "You are a multilingual text safety manager and intent classifier. " +
			"Check the provided text and tell to which category it belongs based on the provided schema. " +
			"Loans are always LEGAL!",
	}}
	if ctxText := conversationContext(conv); ctxText != "" {
		messages = append(messages, completion.Message{
			Role:    "system",
			Content: "Use the following context only if it helps classify the latest user message.\n" + ctxText,
		})
	}
	messages = append(messages, completion.Message{Role: "user", Content: message})

	raw, err := c.client.Complete(ctx, completion.Request{
		Messages:    messages,
		Schema:      schema,
		Temperature: 0,
		MaxTokens:   100,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("classify turn: %w", err)
	}

	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	v.Category = Category(strings.ToLower(strings.TrimSpace(string(v.Category))))
	if !lo.Contains(allowed, string(v.Category)) {
		return Verdict{}, fmt.Errorf("classifier returned out-of-vocabulary category %q", v.Category)
	}
	return v, nil
}

func verdictSchema(allowed []string) (completion.Schema, error) {
	def, err := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"category": map[string]any{
				"type": "string",
				"enum": allowed,
				"description": "The primary objective of the user's message. " +
					"'danger' means potentially harmful or unsafe content; " +
					"'other' means anything outside finance.",
			},
			"confidence": map[string]any{
				"type":        "number",
				"description": "Classification confidence from 0 to 1.",
			},
			"language": map[string]any{
				"type":        "string",
				"description": "Detected language of the user's message in ISO 639-1 format.",
			},
		},
		"required":             []string{"category", "confidence", "language"},
		"additionalProperties": false,
	})
	if err != nil {
		return completion.Schema{}, fmt.Errorf("build verdict schema: %w", err)
	}
	return completion.Schema{
		Name:       "safety_check",
		Definition: def,
		Required:   []string{"category", "confidence", "language"},
	}, nil
}

// conversationContext renders the latest memory snapshot plus the last
// few visible messages for use as optional prompt context. Internal
// memory messages never appear in the recent-message section.
func conversationContext(conv chat.Chat) string {
	var sections []string

	if mem, ok := conv.LatestMemory(); ok {
		var parts []string
		if mem.LastRequest != "" {
			parts = append(parts, "Last request: "+mem.LastRequest)
		}
		if len(mem.Preferences) > 0 {
			keys := lo.Keys(mem.Preferences)
			sort.Strings(keys)
			lines := make([]string, 0, len(keys))
			for _, k := range keys {
				lines = append(lines, fmt.Sprintf("- %s: %s", k, mem.Preferences[k]))
			}
			parts = append(parts, "Preferences:\n"+strings.Join(lines, "\n"))
		}
		if mem.RollingSummary != "" {
			parts = append(parts, "Rolling summary:\n"+mem.RollingSummary)
		}
		if len(parts) > 0 {
			sections = append(sections, "Memory context:\n"+strings.Join(parts, "\n\n"))
		}
	}

	visible := conv.VisibleMessages()
	if len(visible) > contextWindow {
		visible = visible[len(visible)-contextWindow:]
	}
	lines := make([]string, 0, len(visible))
	for _, m := range visible {
		for _, b := range m.Blocks {
			if b.Text != "" {
				lines = append(lines, fmt.Sprintf("%s: %s", m.Role, b.Text))
				break
			}
		}
	}
	if len(lines) > 0 {
		sections = append(sections, "Recent messages:\n"+strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n\n")
}
