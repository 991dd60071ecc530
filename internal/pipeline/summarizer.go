package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cashium/finchat/internal/chat"
	"github.com/cashium/finchat/internal/completion"
	"github.com/cashium/finchat/internal/i18n"
)

// rollingSummaryMaxParagraphs caps the compacted memory regardless of
// conversation length. Enforced both by prompt and by a hard trim.
const rollingSummaryMaxParagraphs = 4

// Summary is the summarizer's structured output. All but CanDecide and
// UserIntentSummary are written into the next memory snapshot.
type Summary struct {
	CanDecide         bool              `json:"can_decide"`
	UserIntentSummary string            `json:"user_intent_summary"`
	Motivation        string            `json:"motivation"`
	Preferences       map[string]string `json:"preferences"`
	RollingSummary    string            `json:"rolling_summary"`
	LastRequest       string            `json:"last_request"`
}

// Snapshot converts the summary into the persisted memory form.
func (s Summary) Snapshot() chat.MemorySnapshot {
	return chat.MemorySnapshot{
		Preferences:    s.Preferences,
		RollingSummary: s.RollingSummary,
		LastRequest:    s.LastRequest,
	}
}

// Summarizer folds the conversation plus the prior memory snapshot into
// a decision-readiness verdict and the snapshot's replacement.
type Summarizer struct {
	client completion.Client
}

func NewSummarizer(client completion.Client) *Summarizer {
	return &Summarizer{client: client}
}

func (s *Summarizer) Summarize(ctx context.Context, conv chat.Chat, lang i18n.Language) (Summary, error) {
	userMessages := make([]string, 0, len(conv.Messages))
	for _, m := range conv.UserMessages() {
		for _, b := range m.Blocks {
			if b.Text != "" {
				userMessages = append(userMessages,
					"---user message start---\n"+b.Text+"\n---user message end---")
				break
			}
		}
	}

	prompt := fmt.Sprintf(summaryPromptTemplate,
		lang.Code(), rollingSummaryMaxParagraphs,
		priorMemorySection(conv), strings.Join(userMessages, "\n\n"))

	raw, err := s.client.Complete(ctx, completion.Request{
		Messages:    []completion.Message{{Role: "system", Content: prompt}},
		Schema:      summarySchema,
		Temperature: 0,
		MaxTokens:   1000,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("summarize chat: %w", err)
	}

	var out Summary
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Summary{}, fmt.Errorf("decode summary: %w", err)
	}
	if out.Motivation == "" && !out.CanDecide {
		return Summary{}, fmt.Errorf("summary without motivation cannot request missing information")
	}
	out.RollingSummary = capParagraphs(out.RollingSummary, rollingSummaryMaxParagraphs)
	return out, nil
}

const summaryPromptTemplate = `<user information rules>
Absolutely obligatory user information for a loan:
- loan period
- loan amount
Absolutely obligatory user information for a credit card:
- monthly income
- stated need for the card
Optional helpful user information:
- reason for the product
- user's monthly income
- user's employment status
- any existing debts or financial obligations
Never invent any information about the user.
</user information rules>
<base instruction>
You are a multilingual text summarizer that strictly follows the provided rules and carefully reads <user information rules>.
Summarize the user's messages into the structured JSON described by the schema.
can_decide must be true only if the stated user information is enough to select relevant financial offers, otherwise false.
user_intent_summary must be a concise but informative summary of the user's intent, needs and provided details.
motivation must explain why a decision can or cannot be made and politely ask for any missing information. motivation must be in the user's language: %s, written as markdown text without document-level tags.
preferences must map short preference names to the values the user actually stated, in the user's language.
rolling_summary must compact the prior rolling summary plus the new messages into at most %d paragraphs.
last_request must be one sentence describing the user's latest request.
Reply with the structured JSON and nothing else.
</base instruction>
%s<user messages>
%s
</user messages>`

var summarySchema = completion.Schema{
	Name: "chat_summary",
	Definition: json.RawMessage(`{
		"type": "object",
		"properties": {
			"can_decide": {"type": "boolean"},
			"user_intent_summary": {"type": "string"},
			"motivation": {"type": "string"},
			"preferences": {"type": "object", "additionalProperties": {"type": "string"}},
			"rolling_summary": {"type": "string"},
			"last_request": {"type": "string"}
		},
		"required": ["can_decide", "user_intent_summary", "motivation", "preferences", "rolling_summary", "last_request"],
		"additionalProperties": false
	}`),
	Required: []string{"can_decide", "user_intent_summary", "motivation", "preferences", "rolling_summary", "last_request"},
}

func priorMemorySection(conv chat.Chat) string {
	mem, ok := conv.LatestMemory()
	if !ok {
		return ""
	}
	data, err := json.Marshal(mem)
	if err != nil {
		return ""
	}
	return "<previous memory>\n" + string(data) + "\n</previous memory>\n"
}

// capParagraphs trims text to at most n non-empty paragraphs.
func capParagraphs(text string, n int) string {
	paragraphs := strings.Split(strings.TrimSpace(text), "\n\n")
	kept := make([]string, 0, n)
	for _, p := range paragraphs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		kept = append(kept, strings.TrimSpace(p))
		if len(kept) == n {
			break
		}
	}
	return strings.Join(kept, "\n\n")
}
