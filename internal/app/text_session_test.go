package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// collectingHandler gathers events with a lock so tests can poll for the
// asynchronous assistant reply.
type collectingHandler struct {
	mu         sync.Mutex
	users      []string
	assistants []string
	errs       []error
}

func (h *collectingHandler) OnUserFinal(text string) {
	h.mu.Lock()
	h.users = append(h.users, text)
	h.mu.Unlock()
}

func (h *collectingHandler) OnAssistantFinal(text string) {
	h.mu.Lock()
	h.assistants = append(h.assistants, text)
	h.mu.Unlock()
}

func (h *collectingHandler) OnUserCorrection(text string) {}

func (h *collectingHandler) OnSessionError(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

func (h *collectingHandler) waitAssistant(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		if len(h.assistants) >= n {
			out := append([]string(nil), h.assistants...)
			h.mu.Unlock()
			return out
		}
		h.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d assistant replies", n)
	return nil
}

func (h *collectingHandler) waitError(t *testing.T) error {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		if len(h.errs) > 0 {
			err := h.errs[0]
			h.mu.Unlock()
			return err
		}
		h.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for a session error")
	return nil
}

func TestTextSessionRepliesToSentText(t *testing.T) {
	mock := NewMockGenerationClient()
	sess := NewTextSession(mock)
	h := &collectingHandler{}
	sess.SetHandler(h)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Stop()

	sess.SendText("hello there")

	replies := h.waitAssistant(t, 1)
	if replies[0] != "You said: hello there" {
		t.Fatalf("unexpected reply: %q", replies[0])
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.users) != 1 || h.users[0] != "hello there" {
		t.Fatalf("user final missing: %v", h.users)
	}
}

func TestTextSessionPreStartSendEmitsUserFinalImmediately(t *testing.T) {
	mock := NewMockGenerationClient()
	sess := NewTextSession(mock)
	h := &collectingHandler{}
	sess.SetHandler(h)

	sess.SendText("queued before start")

	// The user final fires without a running session, so the transcript
	// records the message even if the connection never comes up.
	h.mu.Lock()
	users := append([]string(nil), h.users...)
	assistants := len(h.assistants)
	h.mu.Unlock()
	if len(users) != 1 || users[0] != "queued before start" {
		t.Fatalf("user final not emitted pre-start: %v", users)
	}
	if assistants != 0 {
		t.Fatalf("reply arrived before start")
	}

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Stop()

	replies := h.waitAssistant(t, 1)
	if replies[0] != "You said: queued before start" {
		t.Fatalf("queued text not answered after start: %q", replies[0])
	}
}

func TestTextSessionIgnoresBlankInput(t *testing.T) {
	mock := NewMockGenerationClient()
	sess := NewTextSession(mock)
	h := &collectingHandler{}
	sess.SetHandler(h)

	sess.SendText("   ")
	sess.SendText("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.users) != 0 {
		t.Fatalf("blank input produced user finals: %v", h.users)
	}
}

func TestTextSessionReplyFailureSurfacesSessionError(t *testing.T) {
	mock := NewMockGenerationClient()
	mock.ReplyErr = errors.New("rate limited")
	sess := NewTextSession(mock)
	h := &collectingHandler{}
	sess.SetHandler(h)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Stop()

	sess.SendText("hello")

	err := h.waitError(t)
	var se *SessionError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SessionError, got %v", err)
	}
	if !errors.Is(err, mock.ReplyErr) {
		t.Fatalf("cause not wrapped: %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.assistants) != 0 {
		t.Fatalf("failed reply still emitted: %v", h.assistants)
	}
}

func TestTextSessionStartTwiceReportsAlreadyStarted(t *testing.T) {
	sess := NewTextSession(NewMockGenerationClient())
	sess.SetHandler(&collectingHandler{})

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Stop()

	err := sess.Start(context.Background())
	if !errors.Is(err, errAlreadyStarted) {
		t.Fatalf("expected errAlreadyStarted, got %v", err)
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("double start misreported as cancellation: %v", err)
	}
}

func TestTextSessionStartAfterStopReportsStopped(t *testing.T) {
	sess := NewTextSession(NewMockGenerationClient())
	sess.SetHandler(&collectingHandler{})

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess.Stop()

	if err := sess.Start(context.Background()); !errors.Is(err, errSessionStopped) {
		t.Fatalf("expected errSessionStopped, got %v", err)
	}
}

func TestTextSessionStopIsSafeAndFinal(t *testing.T) {
	mock := NewMockGenerationClient()
	sess := NewTextSession(mock)
	h := &collectingHandler{}
	sess.SetHandler(h)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess.Stop()
	sess.Stop()

	sess.SendText("after stop")
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.users) != 0 {
		t.Fatalf("send accepted after stop: %v", h.users)
	}
}
