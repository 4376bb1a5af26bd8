package store

import "time"

// DefaultTitle is the sentinel title a conversation carries until either a
// provisional title is derived from the first user utterance or a final title
// is generated after the session ends.
const DefaultTitle = "New Conversation"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Conversation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	// Summary is set at most once, after the first session end with enough
	// transcript to summarize. Empty means not yet generated.
	Summary string `json:"summary,omitempty"`
	// TitleGenerated flips to true when the final title has been produced;
	// from then on automatic title updates are disabled.
	TitleGenerated bool      `json:"title_generated"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Messages in insertion order. Insertion order and timestamp order can
	// diverge when a correction lands after a later message; readers that
	// need chronological order must sort by CreatedAt.
	Messages []*Message `json:"messages,omitempty"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Audio          []byte    `json:"audio,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationSummary is the compact listing view returned by
// ListConversations.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	MessageCount int          `json:"message_count"`
}
