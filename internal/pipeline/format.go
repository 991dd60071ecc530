package pipeline

import (
	"strings"

	"github.com/russross/blackfriday"

	"github.com/cashium/finchat/internal/chat"
)

// ParseFormat maps a request format string to a Format, defaulting to
// markdown for anything unrecognized.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatHTML)) {
		return FormatHTML
	}
	return FormatMarkdown
}

// renderText turns generated markdown into an answer block for the
// requested format. HTML output is a bare fragment; blackfriday emits no
// document wrapper, so the rendered markdown passes through trimmed.
func renderText(format Format, markdown string) chat.Block {
	if format == FormatHTML {
		html := blackfriday.MarkdownCommon([]byte(markdown))
		return chat.HTMLBlock(strings.TrimSpace(string(html)))
	}
	return chat.MarkdownBlock(strings.TrimSpace(markdown))
}
