package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cashium/finchat/internal/catalog"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind is the closed set of content-block variants. BlockText is the
// untagged variant used for raw user input.
type BlockKind string

const (
	BlockText           BlockKind = ""
	BlockMarkdown       BlockKind = "markdown"
	BlockHTML           BlockKind = "html"
	BlockNotification   BlockKind = "notification"
	BlockOffers         BlockKind = "offers"
	BlockAppOffers      BlockKind = "app_offers"
	BlockInternalMemory BlockKind = "internal_memory"
)

// MemorySnapshot is the compacted rolling memory of a chat. It is stored
// as an internal_memory block on a system message; the most recent one is
// authoritative, older snapshots remain in the log for audit.
type MemorySnapshot struct {
	Preferences    map[string]string `json:"preferences"`
	RollingSummary string            `json:"rolling_summary"`
	LastRequest    string            `json:"last_request"`
}

// Block is one typed unit of message content. Exactly one payload field
// is meaningful for each kind.
type Block struct {
	Kind     BlockKind
	Text     string          // BlockText, BlockMarkdown, BlockHTML, BlockNotification
	OfferIDs []int64         // BlockOffers
	Offers   []catalog.Offer // BlockAppOffers
	Memory   *MemorySnapshot // BlockInternalMemory
}

type blockWire struct {
	Type    BlockKind       `json:"type,omitempty"`
	Content json.RawMessage `json:"content"`
}

func (b Block) MarshalJSON() ([]byte, error) {
	var content any
	switch b.Kind {
	case BlockText, BlockMarkdown, BlockHTML, BlockNotification:
		content = b.Text
	case BlockOffers:
		ids := b.OfferIDs
		if ids == nil {
			ids = []int64{}
		}
		content = ids
	case BlockAppOffers:
		offers := b.Offers
		if offers == nil {
			offers = []catalog.Offer{}
		}
		content = offers
	case BlockInternalMemory:
		content = b.Memory
	default:
		return nil, fmt.Errorf("marshal block: unsupported kind %q", b.Kind)
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal %q block content: %w", b.Kind, err)
	}
	return json.Marshal(blockWire{Type: b.Kind, Content: raw})
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var w blockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal block: %w", err)
	}

	b.Kind = w.Type
	switch w.Type {
	case BlockText, BlockMarkdown, BlockHTML, BlockNotification:
		return json.Unmarshal(w.Content, &b.Text)
	case BlockOffers:
		return json.Unmarshal(w.Content, &b.OfferIDs)
	case BlockAppOffers:
		return json.Unmarshal(w.Content, &b.Offers)
	case BlockInternalMemory:
		b.Memory = &MemorySnapshot{}
		return json.Unmarshal(w.Content, b.Memory)
	default:
		return fmt.Errorf("unmarshal block: unsupported kind %q", w.Type)
	}
}

// TextBlock builds the untagged variant carried by user messages.
func TextBlock(text string) Block { return Block{Kind: BlockText, Text: text} }

func MarkdownBlock(text string) Block { return Block{Kind: BlockMarkdown, Text: text} }

func HTMLBlock(text string) Block { return Block{Kind: BlockHTML, Text: text} }

func NotificationBlock(text string) Block { return Block{Kind: BlockNotification, Text: text} }

func OffersBlock(ids []int64) Block { return Block{Kind: BlockOffers, OfferIDs: ids} }

func AppOffersBlock(offers []catalog.Offer) Block { return Block{Kind: BlockAppOffers, Offers: offers} }

func MemoryBlock(snapshot MemorySnapshot) Block {
	return Block{Kind: BlockInternalMemory, Memory: &snapshot}
}

// Message is one entry in a chat's append-only log.
type Message struct {
	Index     int       `json:"index"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	Blocks    []Block   `json:"data"`
}

// IsInternal reports whether the message carries internal-only content
// that must never reach user-facing rendering or classification input.
func (m Message) IsInternal() bool {
	for _, b := range m.Blocks {
		if b.Kind == BlockInternalMemory {
			return true
		}
	}
	return false
}

// Report is one user complaint about an assistant answer.
type Report struct {
	AnswerIndex int       `json:"answer_index"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chat is the persisted conversation aggregate.
type Chat struct {
	ID                 string    `json:"chat_id"`
	IP                 string    `json:"ip,omitempty"`
	ClientID           string    `json:"client_id"`
	CountryID          int       `json:"country_id"`
	ProviderID         int       `json:"provider_id"`
	Messages           []Message `json:"messages"`
	TerminatedBySystem bool      `json:"is_terminated_by_system"`
	Public             bool      `json:"is_public"`
	Reports            []Report  `json:"reported_messages,omitempty"`
	Created            time.Time `json:"created"`
	Updated            time.Time `json:"updated"`
}

// VisibleMessages returns the log without internal-only entries, for
// history rendering and for building classification context.
func (c Chat) VisibleMessages() []Message {
	out := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.IsInternal() {
			continue
		}
		out = append(out, m)
	}
	return out
}

// UserMessages returns the user-authored entries in log order.
func (c Chat) UserMessages() []Message {
	out := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			out = append(out, m)
		}
	}
	return out
}

// LatestMemory returns the most recent memory snapshot, if any. Consumers
// must treat it as the sole authoritative compacted memory.
func (c Chat) LatestMemory() (MemorySnapshot, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		m := c.Messages[i]
		if m.Role != RoleSystem {
			continue
		}
		for _, b := range m.Blocks {
			if b.Kind == BlockInternalMemory && b.Memory != nil {
				return *b.Memory, true
			}
		}
	}
	return MemorySnapshot{}, false
}

// Preview returns the first user text, for chat list rendering.
func (c Chat) Preview() string {
	for _, m := range c.Messages {
		if m.Role != RoleUser {
			continue
		}
		for _, b := range m.Blocks {
			if (b.Kind == BlockText || b.Kind == BlockMarkdown) && b.Text != "" {
				return b.Text
			}
		}
	}
	return ""
}
