package app

import (
	"strings"

	"voice-agent/internal/store"
)

// BaseInstructions is the fixed baseline merged into every session start.
const BaseInstructions = "You are a helpful and friendly AI assistant. You respond naturally via voice and text. Keep your responses concise but engaging."

const (
	contextMaxPastConversations = 10
	contextPerMessageChars      = 400
	contextPerSummaryChars      = 600
)

// BuildInstructions produces the instruction payload handed to a session
// before it starts. Pure function: no store access, no generation calls.
//
// current must already be sorted ascending by timestamp; others must exclude
// the conversation being resumed and arrive sorted by recency (most recent
// first).
func BuildInstructions(baseline string, current []*store.Message, others []*store.Conversation) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(baseline))

	if len(current) > 0 {
		b.WriteString("\n\nEarlier in this conversation:\n")
		for _, m := range current {
			txt := collapseWhitespace(m.Content)
			if txt == "" {
				continue
			}
			b.WriteString(roleLabel(m.Role))
			b.WriteString(": ")
			b.WriteString(truncateEllipsis(txt, contextPerMessageChars))
			b.WriteString("\n")
		}
	}

	past := 0
	for _, conv := range others {
		if strings.TrimSpace(conv.Summary) == "" {
			continue
		}
		if past == 0 {
			b.WriteString("\nWhat you remember from past conversations:\n")
		}
		b.WriteString("- ")
		b.WriteString(collapseWhitespace(conv.Title))
		b.WriteString(": ")
		b.WriteString(truncateEllipsis(collapseWhitespace(conv.Summary), contextPerSummaryChars))
		b.WriteString("\n")
		past++
		if past >= contextMaxPastConversations {
			break
		}
	}

	return strings.TrimSpace(b.String())
}

func roleLabel(r store.Role) string {
	switch r {
	case store.RoleUser:
		return "User"
	case store.RoleAssistant:
		return "Assistant"
	default:
		return "System"
	}
}
