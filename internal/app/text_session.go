package app

import (
	"context"
	"errors"
	"strings"
	"sync"

	"voice-agent/internal/store"
)

// TextSession is a Session backed by the chat generation client instead of
// the realtime voice transport. It drives the same event contract: user
// finals on send, assistant finals when the reply arrives. Text sent before
// Start is queued and answered once the session is running, while the user
// final event is emitted immediately so the transcript records it either way.
type TextSession struct {
	gen ChatClient

	mu           sync.Mutex
	handler      SessionHandler
	instructions string
	started      bool
	stopped      bool
	queued       []string
	history      []*store.Message

	jobs   chan string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var (
	errAlreadyStarted = errors.New("session already started")
	errSessionStopped = errors.New("session stopped")
)

func NewTextSession(gen ChatClient) *TextSession {
	return &TextSession{
		gen:  gen,
		jobs: make(chan string, 16),
	}
}

func (s *TextSession) SetHandler(h SessionHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *TextSession) UpdateInstructions(text string) {
	s.mu.Lock()
	s.instructions = text
	s.mu.Unlock()
}

// RequestMicPermission always succeeds: a text session has no microphone.
func (s *TextSession) RequestMicPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *TextSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return &SessionError{Op: "start", Err: errSessionStopped}
	}
	if s.started {
		s.mu.Unlock()
		return &SessionError{Op: "start", Err: errAlreadyStarted}
	}
	s.started = true
	queued := s.queued
	s.queued = nil
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.replyLoop(runCtx)

	for _, text := range queued {
		s.enqueue(text)
	}
	return nil
}

func (s *TextSession) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	close(s.jobs)
	if started {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	}
}

func (s *TextSession) SendText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	h := s.handler
	s.history = append(s.history, &store.Message{Role: store.RoleUser, Content: text})
	started := s.started
	if !started {
		s.queued = append(s.queued, text)
	}
	s.mu.Unlock()

	// The user final fires even when disconnected so the message is persisted;
	// the reply waits for Start.
	if h != nil {
		h.OnUserFinal(text)
	}
	if started {
		s.enqueue(text)
	}
}

func (s *TextSession) enqueue(text string) {
	defer func() { _ = recover() }() // Stop may have closed the channel
	s.jobs <- text
}

func (s *TextSession) replyLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-s.jobs:
			if !ok {
				return
			}
			s.reply(ctx)
		}
	}
}

func (s *TextSession) reply(ctx context.Context) {
	s.mu.Lock()
	h := s.handler
	instructions := s.instructions
	snapshot := make([]*store.Message, len(s.history))
	copy(snapshot, s.history)
	s.mu.Unlock()

	resp, err := s.gen.Reply(ctx, instructions, snapshot)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if h != nil {
			h.OnSessionError(&SessionError{Op: "reply", Err: err})
		}
		return
	}

	s.mu.Lock()
	s.history = append(s.history, &store.Message{Role: store.RoleAssistant, Content: resp})
	s.mu.Unlock()

	if h != nil {
		h.OnAssistantFinal(resp)
	}
}
