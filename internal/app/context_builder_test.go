package app

import (
	"strings"
	"testing"
	"time"

	"voice-agent/internal/store"
)

func TestBuildInstructionsBaselineOnly(t *testing.T) {
	got := BuildInstructions(BaseInstructions, nil, nil)
	if got != BaseInstructions {
		t.Fatalf("expected bare baseline, got %q", got)
	}
}

func TestBuildInstructionsIncludesCurrentTranscript(t *testing.T) {
	msgs := []*store.Message{
		{Role: store.RoleUser, Content: "what's the weather", CreatedAt: time.Now()},
		{Role: store.RoleAssistant, Content: "sunny all day", CreatedAt: time.Now()},
	}

	got := BuildInstructions(BaseInstructions, msgs, nil)

	if !strings.Contains(got, "Earlier in this conversation:") {
		t.Fatalf("missing transcript section:\n%s", got)
	}
	if !strings.Contains(got, "User: what's the weather") {
		t.Fatalf("missing user line:\n%s", got)
	}
	if !strings.Contains(got, "Assistant: sunny all day") {
		t.Fatalf("missing assistant line:\n%s", got)
	}
	userIdx := strings.Index(got, "User: what's the weather")
	asstIdx := strings.Index(got, "Assistant: sunny all day")
	if userIdx > asstIdx {
		t.Fatalf("transcript lines out of order:\n%s", got)
	}
}

func TestBuildInstructionsSkipsConversationsWithoutSummary(t *testing.T) {
	others := []*store.Conversation{
		{Title: "No Memory Yet"},
		{Title: "Remembered", Summary: "We discussed travel plans."},
	}

	got := BuildInstructions(BaseInstructions, nil, others)

	if strings.Contains(got, "No Memory Yet") {
		t.Fatalf("summaryless conversation leaked into context:\n%s", got)
	}
	if !strings.Contains(got, "- Remembered: We discussed travel plans.") {
		t.Fatalf("summarized conversation missing:\n%s", got)
	}
}

func TestBuildInstructionsNoMemorySectionWhenNothingSummarized(t *testing.T) {
	others := []*store.Conversation{{Title: "A"}, {Title: "B"}}
	got := BuildInstructions(BaseInstructions, nil, others)
	if strings.Contains(got, "What you remember") {
		t.Fatalf("memory header emitted with nothing to remember:\n%s", got)
	}
}

func TestBuildInstructionsCapsPastConversations(t *testing.T) {
	var others []*store.Conversation
	for i := 0; i < contextMaxPastConversations+5; i++ {
		others = append(others, &store.Conversation{
			Title:   "Past",
			Summary: "Something happened.",
		})
	}

	got := BuildInstructions(BaseInstructions, nil, others)

	if n := strings.Count(got, "- Past:"); n != contextMaxPastConversations {
		t.Fatalf("expected %d past entries, got %d", contextMaxPastConversations, n)
	}
}

func TestBuildInstructionsTruncatesLongContent(t *testing.T) {
	msgs := []*store.Message{
		{Role: store.RoleUser, Content: strings.Repeat("a", contextPerMessageChars*2)},
	}
	others := []*store.Conversation{
		{Title: "Long", Summary: strings.Repeat("b", contextPerSummaryChars*2)},
	}

	got := BuildInstructions(BaseInstructions, msgs, others)

	if strings.Contains(got, strings.Repeat("a", contextPerMessageChars+1)) {
		t.Fatalf("message not truncated")
	}
	if strings.Contains(got, strings.Repeat("b", contextPerSummaryChars+1)) {
		t.Fatalf("summary not truncated")
	}
	if !strings.Contains(got, "…") {
		t.Fatalf("truncation marker missing")
	}
}

func TestBuildInstructionsDeterministic(t *testing.T) {
	msgs := []*store.Message{
		{Role: store.RoleUser, Content: "hello"},
		{Role: store.RoleAssistant, Content: "hi"},
	}
	others := []*store.Conversation{{Title: "T", Summary: "S"}}

	first := BuildInstructions(BaseInstructions, msgs, others)
	second := BuildInstructions(BaseInstructions, msgs, others)
	if first != second {
		t.Fatalf("same inputs produced different payloads")
	}
}
