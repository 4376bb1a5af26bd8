package app

import (
	"context"

	"voice-agent/internal/logger"
	"voice-agent/internal/metrics"
	"voice-agent/internal/store"
)

const (
	summaryMinMessages = 2
	titleMinMessages   = 1
)

// GenerationClient is the external text-generation collaborator used for
// post-session memory extraction.
type GenerationClient interface {
	Summarize(ctx context.Context, msgs []*store.Message) (string, error)
	GenerateTitle(ctx context.Context, msgs []*store.Message) (string, error)
}

// MemoryGenerator derives a summary and a title for a conversation after its
// session ends. Each field is written at most once per conversation; a failed
// attempt leaves the field unset so the next session end retries it.
type MemoryGenerator struct {
	store ConversationStore
	gen   GenerationClient
	log   *logger.Logger
	m     *metrics.Metrics
}

func NewMemoryGenerator(st ConversationStore, gen GenerationClient, log *logger.Logger, m *metrics.Metrics) *MemoryGenerator {
	return &MemoryGenerator{
		store: st,
		gen:   gen,
		log:   log.Component("memory"),
		m:     m,
	}
}

// GenerateMemory runs both extraction attempts independently: a summary
// failure never blocks the title attempt, and vice versa. The conversation is
// persisted once afterwards regardless of outcome.
func (g *MemoryGenerator) GenerateMemory(ctx context.Context, conv *store.Conversation) {
	// Another session on the same conversation may have generated memory
	// since this snapshot was loaded. Durable state wins: a summary
	// transitions absent to present exactly once, and a generated title is
	// never replaced.
	if latest, err := g.store.LoadConversation(conv.ID); err != nil {
		g.log.Warn().Err(err).Str("conversation", conv.ID).Msg("memory state reload failed")
	} else {
		if conv.Summary == "" {
			conv.Summary = latest.Summary
		}
		if latest.TitleGenerated && !conv.TitleGenerated {
			conv.Title = latest.Title
			conv.TitleGenerated = true
		}
	}

	sorted := sortMessagesByTime(conv.Messages)

	if conv.Summary == "" && len(sorted) >= summaryMinMessages {
		summary, err := g.gen.Summarize(ctx, sorted)
		if err != nil {
			g.m.GenerationsTotal.WithLabelValues("summary", "error").Inc()
			g.log.Error().Err(err).Str("conversation", conv.ID).Msg("summarization failed")
		} else if summary != "" {
			conv.Summary = summary
			g.m.GenerationsTotal.WithLabelValues("summary", "ok").Inc()
		}
	} else {
		g.m.GenerationsTotal.WithLabelValues("summary", "skipped").Inc()
	}

	if !conv.TitleGenerated && len(sorted) >= titleMinMessages {
		title, err := g.gen.GenerateTitle(ctx, sorted)
		if err != nil {
			g.m.GenerationsTotal.WithLabelValues("title", "error").Inc()
			g.log.Error().Err(err).Str("conversation", conv.ID).Msg("title generation failed")
		} else if title != "" {
			conv.Title = title
			conv.TitleGenerated = true
			g.m.GenerationsTotal.WithLabelValues("title", "ok").Inc()
		}
	} else {
		g.m.GenerationsTotal.WithLabelValues("title", "skipped").Inc()
	}

	if err := g.store.SaveConversation(conv); err != nil {
		g.m.TranscriptSavesTotal.WithLabelValues("error").Inc()
		g.log.Error().Err(err).Str("conversation", conv.ID).Msg("memory flush failed")
	}
}
