package app

import (
	"context"
	"strings"
	"sync"

	"voice-agent/internal/logger"
	"voice-agent/internal/metrics"
	"voice-agent/internal/store"
)

// Application wires the durable store, the generation services and the
// observability stack together.
type Application struct {
	Config  Config
	Log     *logger.Logger
	Metrics *metrics.Metrics
	Store   *store.SQLiteConversationStore

	Gen  GenerationClient
	Chat ChatClient

	// coords maps conversation ID to its live coordinator so every session
	// opened on the same conversation, including a session reopened while a
	// previous one's memory generation is still in flight, shares one owner
	// goroutine.
	coordMu sync.Mutex
	coords  map[string]*coordRef
}

// coordRef counts the sessions holding a conversation's coordinator; the
// coordinator is closed when the last holder drains.
type coordRef struct {
	coord *Coordinator
	refs  int
}

func NewApplication(cfg Config, log *logger.Logger, m *metrics.Metrics) (*Application, error) {
	st, err := store.NewSQLiteConversationStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	gen := NewAnthropicGenerator(cfg.AnthropicAPIKey, cfg.Model, cfg.MaxTokens)
	return &Application{
		Config:  cfg,
		Log:     log,
		Metrics: m,
		Store:   st,
		Gen:     gen,
		Chat:    gen,
		coords:  make(map[string]*coordRef),
	}, nil
}

func (a *Application) acquireCoordinator(id string) *Coordinator {
	a.coordMu.Lock()
	defer a.coordMu.Unlock()
	ref := a.coords[id]
	if ref == nil {
		ref = &coordRef{coord: NewCoordinator()}
		a.coords[id] = ref
	}
	ref.refs++
	return ref.coord
}

// releaseCoordinator drops one hold on a conversation's coordinator and, when
// it was the last, closes it, waiting for queued work to drain.
func (a *Application) releaseCoordinator(id string) {
	a.coordMu.Lock()
	ref := a.coords[id]
	if ref == nil {
		a.coordMu.Unlock()
		return
	}
	ref.refs--
	if ref.refs > 0 {
		a.coordMu.Unlock()
		return
	}
	delete(a.coords, id)
	a.coordMu.Unlock()
	ref.coord.Close()
}

// UseMockGeneration swaps the real generation services for canned ones.
func (a *Application) UseMockGeneration() *MockGenerationClient {
	mock := NewMockGenerationClient()
	a.Gen = mock
	a.Chat = mock
	return mock
}

func (a *Application) Close() error {
	return a.Store.Close()
}

// ConversationSession binds one conversation, one live session and the
// coordinator that owns every mutation of that conversation's transcript.
type ConversationSession struct {
	app     *Application
	conv    *store.Conversation
	coord   *Coordinator
	rec     *Reconciler
	session Session
	memgen  *MemoryGenerator

	closeOnce sync.Once
	drainOnce sync.Once
}

// OpenConversation loads (or, with an empty id, creates) a conversation and
// binds it to the given session. The session's events are serialized through
// the conversation's coordinator, which is shared across every session opened
// on the same conversation: reopening while a previous session's memory
// generation is still queued puts the new session's work behind it.
func (a *Application) OpenConversation(id string, sess Session) (*ConversationSession, error) {
	var conv *store.Conversation
	var err error
	if strings.TrimSpace(id) == "" {
		conv, err = a.Store.CreateConversation()
	} else {
		conv, err = a.Store.LoadConversation(id)
	}
	if err != nil {
		return nil, err
	}

	coord := a.acquireCoordinator(conv.ID)
	rec := NewReconciler(conv, a.Store, a.Log, a.Metrics)
	cs := &ConversationSession{
		app:     a,
		conv:    conv,
		coord:   coord,
		rec:     rec,
		session: sess,
		memgen:  NewMemoryGenerator(a.Store, a.Gen, a.Log, a.Metrics),
	}
	sess.SetHandler(&coordinatedHandler{coord: coord, rec: rec})
	return cs, nil
}

func (cs *ConversationSession) Conversation() *store.Conversation {
	return cs.conv
}

// SetErrorReporter forwards non-fatal session errors to the UI boundary.
func (cs *ConversationSession) SetErrorReporter(fn func(error)) {
	cs.rec.SetErrorReporter(fn)
}

// SetTranscriptObserver registers a display callback invoked after each
// transcript mutation.
func (cs *ConversationSession) SetTranscriptObserver(fn func(role store.Role, text string)) {
	cs.rec.SetObserver(fn)
}

// Start acquires mic permission, injects conversation context into the
// session and connects. Instructions are applied strictly before the session
// start so the initial handshake carries them.
func (cs *ConversationSession) Start(ctx context.Context) error {
	granted, err := cs.session.RequestMicPermission(ctx)
	if err != nil {
		return err
	}
	if !granted {
		return ErrPermissionDenied
	}

	cs.session.UpdateInstructions(cs.buildInstructions())
	if err := cs.session.Start(ctx); err != nil {
		return &SessionError{Op: "start", Err: err}
	}
	return nil
}

func (cs *ConversationSession) SendText(text string) {
	cs.session.SendText(text)
}

// Close stops the live session and schedules post-session memory generation
// on the conversation's coordinator. The generation task is fire-and-forget
// for the caller, and because the coordinator is shared per conversation a
// session reopened on this conversation cannot interleave with it.
func (cs *ConversationSession) Close() {
	cs.closeOnce.Do(func() {
		cs.session.Stop()
		cs.coord.Post(func() {
			cs.memgen.GenerateMemory(context.Background(), cs.conv)
		})
	})
}

// Drain releases this session's hold on the conversation's coordinator. When
// no other session holds it, Drain waits for all queued work, including
// scheduled memory generation, before returning. Call after Close, before
// process exit; a session opened through the application must eventually
// drain or the coordinator goroutine is kept alive.
func (cs *ConversationSession) Drain() {
	cs.drainOnce.Do(func() {
		cs.app.releaseCoordinator(cs.conv.ID)
	})
}

func (cs *ConversationSession) buildInstructions() string {
	others := []*store.Conversation{}
	all, err := cs.app.Store.FetchAllSortedByRecencyDesc()
	if err != nil {
		cs.app.Log.Warn().Err(err).Msg("fetching past conversations failed")
	} else {
		for _, c := range all {
			if c.ID != cs.conv.ID {
				others = append(others, c)
			}
		}
	}
	return BuildInstructions(BaseInstructions, sortMessagesByTime(cs.conv.Messages), others)
}

// coordinatedHandler posts every session event onto the conversation's
// coordinator so the reconciler never runs concurrently with itself or with
// memory generation.
type coordinatedHandler struct {
	coord *Coordinator
	rec   *Reconciler
}

func (h *coordinatedHandler) OnUserFinal(text string) {
	h.coord.Post(func() { h.rec.OnUserFinal(text) })
}

func (h *coordinatedHandler) OnAssistantFinal(text string) {
	h.coord.Post(func() { h.rec.OnAssistantFinal(text) })
}

func (h *coordinatedHandler) OnUserCorrection(text string) {
	h.coord.Post(func() { h.rec.OnUserCorrection(text) })
}

func (h *coordinatedHandler) OnSessionError(err error) {
	h.coord.Post(func() { h.rec.OnSessionError(err) })
}
