package pipeline

import (
	"errors"

	"github.com/cashium/finchat/internal/chat"
	"github.com/cashium/finchat/internal/i18n"
)

// Format selects the textual rendering of generated answer blocks.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// TurnRequest is the immutable input of one conversational turn. It is
// built once at turn entry and threaded through every stage by value.
type TurnRequest struct {
	ChatID     string
	ClientID   string
	CountryID  int
	ProviderID int
	Message    string
	LangCode   string
	Format     Format
	IP         string

	// ResolveOffers switches the final offer block from bare ids to
	// fully resolved catalog records.
	ResolveOffers bool

	// Notify, when set, receives stage names as the pipeline advances.
	Notify func(stage string)
}

// Outcome is the terminal state a turn reached.
type Outcome string

const (
	OutcomeAnswered   Outcome = "answered"
	OutcomeNeedInfo   Outcome = "need_info"
	OutcomeOffTopic   Outcome = "off_topic"
	OutcomeTerminated Outcome = "terminated"
	OutcomeFailed     Outcome = "failed"
)

// Success reports the transport-level success flag for the outcome.
// Terminated and failed turns are unsuccessful even when they return a
// well-formed notice.
func (o Outcome) Success() bool {
	switch o {
	case OutcomeAnswered, OutcomeNeedInfo, OutcomeOffTopic:
		return true
	default:
		return false
	}
}

// Result is the answer envelope of one processed turn. ServerError marks
// results produced by the top-level recovery path, which the transport
// reports with a 5xx status; every other outcome travels as 200.
type Result struct {
	ChatID      string
	Outcome     Outcome
	Blocks      []chat.Block
	ServerError bool
}

// Validation errors, rejected before any persistence or provider call.
var (
	ErrEmptyMessage        = errors.New("empty message")
	ErrUnsupportedCountry  = errors.New("unsupported country")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrSessionNotFound     = errors.New("chat session not found")
)

// turnContext carries the resolved per-turn values shared by the stages.
type turnContext struct {
	turnID  string
	country i18n.Country
	lang    i18n.Language
	format  Format
}

func (t turnContext) notice(key i18n.Key) string {
	return i18n.Translate(key, t.lang)
}
