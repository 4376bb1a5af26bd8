package app

import (
	"context"
	"fmt"
	"strings"

	"voice-agent/internal/store"
)

// MockGenerationClient simulates the generation services for tests and for
// running the CLI without an API key.
type MockGenerationClient struct {
	SummaryText string
	TitleText   string

	SummarizeErr error
	TitleErr     error
	ReplyErr     error

	SummarizeCalls int
	TitleCalls     int
	ReplyCalls     int
}

func NewMockGenerationClient() *MockGenerationClient {
	return &MockGenerationClient{}
}

func (c *MockGenerationClient) Summarize(ctx context.Context, msgs []*store.Message) (string, error) {
	c.SummarizeCalls++
	if c.SummarizeErr != nil {
		return "", c.SummarizeErr
	}
	if c.SummaryText != "" {
		return c.SummaryText, nil
	}
	return fmt.Sprintf("Conversation with %d messages, starting with: %s",
		len(msgs), truncateEllipsis(firstUserContent(msgs), 80)), nil
}

func (c *MockGenerationClient) GenerateTitle(ctx context.Context, msgs []*store.Message) (string, error) {
	c.TitleCalls++
	if c.TitleErr != nil {
		return "", c.TitleErr
	}
	if c.TitleText != "" {
		return c.TitleText, nil
	}
	return truncateRunes(firstUserContent(msgs), provisionalTitleMaxRunes), nil
}

func (c *MockGenerationClient) Reply(ctx context.Context, instructions string, history []*store.Message) (string, error) {
	c.ReplyCalls++
	if c.ReplyErr != nil {
		return "", c.ReplyErr
	}
	last := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == store.RoleUser {
			last = history[i].Content
			break
		}
	}
	return fmt.Sprintf("You said: %s", strings.TrimSpace(last)), nil
}

func firstUserContent(msgs []*store.Message) string {
	for _, m := range msgs {
		if m.Role == store.RoleUser && strings.TrimSpace(m.Content) != "" {
			return collapseWhitespace(m.Content)
		}
	}
	return "(no user messages)"
}
