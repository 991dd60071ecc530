package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/cashium/finchat/internal/chat"
	"github.com/cashium/finchat/internal/completion"
)

func TestClassifyExtendsVocabularyWithCatalogTypes(t *testing.T) {
	client := completion.NewMockClient()
	client.Script("safety_check", `{"category": "microloan", "confidence": 0.9, "language": "es"}`)
	c := NewClassifier(client)

	v, err := c.Classify(context.Background(), chat.Chat{}, "necesito un microcrédito", []string{"microloan", "loan"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if v.Category != Category("microloan") {
		t.Fatalf("category = %q, want microloan", v.Category)
	}

	schema := string(client.Calls[0].Schema.Definition)
	for _, want := range []string{"danger", "other", "microloan", "loan"} {
		if !strings.Contains(schema, `"`+want+`"`) {
			t.Fatalf("schema enum missing %q: %s", want, schema)
		}
	}
}

func TestClassifyRejectsOutOfVocabularyLabel(t *testing.T) {
	client := completion.NewMockClient()
	client.Script("safety_check", `{"category": "weather", "confidence": 0.9, "language": "en"}`)
	c := NewClassifier(client)

	if _, err := c.Classify(context.Background(), chat.Chat{}, "hola", nil); err == nil {
		t.Fatalf("Classify() should fail on an out-of-vocabulary category")
	}
}

func TestClassifyFailureIsNotSafe(t *testing.T) {
	client := completion.NewMockClientWithHandler(func(completion.Request) (string, error) {
		return `not json`, nil
	})
	c := NewClassifier(client)

	if _, err := c.Classify(context.Background(), chat.Chat{}, "hola", nil); err == nil {
		t.Fatalf("malformed verdict must be an error, never treated as safe")
	}
}

func TestConversationContextExcludesMemoryFromRecentMessages(t *testing.T) {
	conv := chat.Chat{Messages: []chat.Message{
		{Index: 0, Role: chat.RoleUser, Blocks: []chat.Block{chat.TextBlock("Quiero un préstamo")}},
		{Index: 1, Role: chat.RoleSystem, Blocks: []chat.Block{chat.MemoryBlock(chat.MemorySnapshot{
			Preferences:    map[string]string{"amount": "10000"},
			RollingSummary: "User wants a loan.",
			LastRequest:    "Loan request.",
		})}},
		{Index: 2, Role: chat.RoleAssistant, Blocks: []chat.Block{chat.MarkdownBlock("¿Qué plazo?")}},
	}}

	got := conversationContext(conv)
	if !strings.Contains(got, "Memory context:") || !strings.Contains(got, "amount: 10000") {
		t.Fatalf("context missing memory section: %q", got)
	}
	if !strings.Contains(got, "user: Quiero un préstamo") {
		t.Fatalf("context missing recent messages: %q", got)
	}
	recent := got[strings.Index(got, "Recent messages:"):]
	if strings.Contains(recent, "Loan request.") {
		t.Fatalf("memory snapshot leaked into recent messages: %q", recent)
	}
}

func TestConversationContextWindowBound(t *testing.T) {
	conv := chat.Chat{}
	for i := 0; i < 30; i++ {
		conv.Messages = append(conv.Messages, chat.Message{
			Index: i, Role: chat.RoleUser, Blocks: []chat.Block{chat.TextBlock("msg")},
		})
	}

	got := conversationContext(conv)
	if n := strings.Count(got, "user: msg"); n != contextWindow {
		t.Fatalf("context carries %d messages, want %d", n, contextWindow)
	}
}
