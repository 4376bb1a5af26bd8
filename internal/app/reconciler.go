package app

import (
	"voice-agent/internal/logger"
	"voice-agent/internal/metrics"
	"voice-agent/internal/store"
)

// placeholderTranscript is the value the transcription pipeline emits while a
// user utterance is still being finalized. It is never promoted to a title.
const placeholderTranscript = "…"

const provisionalTitleMaxRunes = 50

// ConversationStore is the slice of the durable store the reconciler and
// memory generator work through.
type ConversationStore interface {
	LoadConversation(id string) (*store.Conversation, error)
	InsertMessage(msg *store.Message) error
	UpdateMessage(msg *store.Message) error
	SaveConversation(conv *store.Conversation) error
}

// Reconciler projects one session's event stream onto the transcript of
// exactly one conversation.
//
// All methods must run on the conversation's coordinator; the reconciler
// itself does no locking.
type Reconciler struct {
	conv  *store.Conversation
	store ConversationStore
	log   *logger.Logger
	m     *metrics.Metrics

	// pendingUser is the most recently appended user message, still eligible
	// for an in-place correction. An assistant reply does not clear it: the
	// transport can finalize the assistant turn before the transcription
	// pipeline finalizes the user turn, so the correction for the previous
	// utterance may arrive after the reply. Tracking the message directly
	// (rather than "last element of the transcript") is what makes that
	// ordering safe.
	pendingUser *store.Message

	// reportError forwards non-fatal session errors to the UI boundary.
	reportError func(error)

	// observer is notified after each transcript mutation, for display.
	observer func(role store.Role, text string)
}

func NewReconciler(conv *store.Conversation, st ConversationStore, log *logger.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		conv:  conv,
		store: st,
		log:   log.Component("reconciler"),
		m:     m,
	}
}

// SetErrorReporter registers the UI-boundary callback for session errors.
func (r *Reconciler) SetErrorReporter(fn func(error)) {
	r.reportError = fn
}

// SetObserver registers the UI-boundary callback for transcript updates.
func (r *Reconciler) SetObserver(fn func(role store.Role, text string)) {
	r.observer = fn
}

func (r *Reconciler) OnUserFinal(text string) {
	r.m.SessionEventsTotal.WithLabelValues("user_final").Inc()
	if text == "" {
		return
	}

	msg := &store.Message{
		ConversationID: r.conv.ID,
		Role:           store.RoleUser,
		Content:        text,
	}
	r.conv.Messages = append(r.conv.Messages, msg)
	r.insert(msg)
	r.pendingUser = msg

	// Provisional title from the first accepted utterance; replaced when the
	// final title is generated after the session ends.
	if r.conv.Title == store.DefaultTitle && !r.conv.TitleGenerated && text != placeholderTranscript {
		r.conv.Title = truncateRunes(text, provisionalTitleMaxRunes)
	}

	r.flush()
	r.notify(store.RoleUser, text)
}

func (r *Reconciler) OnAssistantFinal(text string) {
	r.m.SessionEventsTotal.WithLabelValues("assistant_final").Inc()
	if text == "" {
		return
	}

	msg := &store.Message{
		ConversationID: r.conv.ID,
		Role:           store.RoleAssistant,
		Content:        text,
	}
	r.conv.Messages = append(r.conv.Messages, msg)
	r.insert(msg)
	// pendingUser deliberately survives: see the field comment.

	r.flush()
	r.notify(store.RoleAssistant, text)
}

func (r *Reconciler) OnUserCorrection(text string) {
	r.m.SessionEventsTotal.WithLabelValues("user_correction").Inc()
	if r.pendingUser == nil || text == "" {
		return
	}

	r.pendingUser.Content = text
	if err := r.store.UpdateMessage(r.pendingUser); err != nil {
		r.m.TranscriptSavesTotal.WithLabelValues("error").Inc()
		r.log.Error().Err(err).Str("conversation", r.conv.ID).Msg("message correction flush failed")
	}

	if (r.conv.Title == store.DefaultTitle || r.conv.Title == placeholderTranscript) && !r.conv.TitleGenerated {
		r.conv.Title = truncateRunes(text, provisionalTitleMaxRunes)
	}

	r.flush()
	r.notify(store.RoleUser, text)
}

func (r *Reconciler) notify(role store.Role, text string) {
	if r.observer != nil {
		r.observer(role, text)
	}
}

func (r *Reconciler) OnSessionError(err error) {
	r.m.SessionEventsTotal.WithLabelValues("session_error").Inc()
	r.log.Warn().Err(err).Str("conversation", r.conv.ID).Msg("session error")
	if r.reportError != nil {
		r.reportError(err)
	}
}

func (r *Reconciler) insert(msg *store.Message) {
	if err := r.store.InsertMessage(msg); err != nil {
		r.m.TranscriptSavesTotal.WithLabelValues("error").Inc()
		r.log.Error().Err(err).Str("conversation", r.conv.ID).Msg("message insert failed")
	}
}

// flush is the best-effort persistence pass after a mutation. A failure is
// logged and the in-memory transcript stays authoritative until the next
// successful save.
func (r *Reconciler) flush() {
	if err := r.store.SaveConversation(r.conv); err != nil {
		r.m.TranscriptSavesTotal.WithLabelValues("error").Inc()
		r.log.Error().Err(err).Str("conversation", r.conv.ID).Msg("conversation flush failed")
		return
	}
	r.m.TranscriptSavesTotal.WithLabelValues("ok").Inc()
}
