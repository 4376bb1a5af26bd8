package app

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"voice-agent/internal/store"
)

const summarizePrompt = "Summarize the following conversation between a user and an AI assistant in two or three sentences. Capture the topics discussed and any conclusions reached. Respond with the summary only."

const titlePrompt = "Generate a short title of at most six words for the following conversation. Respond with the title only, without quotes."

// ChatClient produces assistant replies for the text-backed session.
type ChatClient interface {
	Reply(ctx context.Context, instructions string, history []*store.Message) (string, error)
}

// AnthropicGenerator implements GenerationClient and ChatClient on top of the
// Anthropic Messages API.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func NewAnthropicGenerator(apiKey, model string, maxTokens int) *AnthropicGenerator {
	// The SDK also reads ANTHROPIC_API_KEY from the env when no key is given.
	var client anthropic.Client
	if strings.TrimSpace(apiKey) != "" {
		client = anthropic.NewClient(option.WithAPIKey(apiKey))
	} else {
		client = anthropic.NewClient()
	}
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicGenerator{
		client:    client,
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
	}
}

func (g *AnthropicGenerator) Summarize(ctx context.Context, msgs []*store.Message) (string, error) {
	out, err := g.complete(ctx, summarizePrompt, buildTranscript(msgs))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *AnthropicGenerator) GenerateTitle(ctx context.Context, msgs []*store.Message) (string, error) {
	out, err := g.complete(ctx, titlePrompt, buildTranscript(msgs))
	if err != nil {
		return "", err
	}
	title := collapseWhitespace(strings.Trim(strings.TrimSpace(out), `"'`))
	return truncateRunes(title, provisionalTitleMaxRunes), nil
}

func (g *AnthropicGenerator) Reply(ctx context.Context, instructions string, history []*store.Message) (string, error) {
	conv := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case store.RoleUser:
			conv = append(conv, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case store.RoleAssistant:
			conv = append(conv, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(conv) == 0 {
		return "", errors.New("empty conversation")
	}

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: instructions}},
		Messages:  conv,
	})
	if err != nil {
		return "", err
	}
	return completionText(msg)
}

func (g *AnthropicGenerator) complete(ctx context.Context, system, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", errors.New("empty transcript")
	}
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(input)),
		},
	})
	if err != nil {
		return "", err
	}
	return completionText(msg)
}

func completionText(msg *anthropic.Message) (string, error) {
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok && v.Text != "" {
			return v.Text, nil
		}
	}
	return "", errors.New("no text content in response")
}

func buildTranscript(msgs []*store.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		txt := collapseWhitespace(m.Content)
		if txt == "" {
			continue
		}
		b.WriteString(roleLabel(m.Role))
		b.WriteString(": ")
		b.WriteString(txt)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
