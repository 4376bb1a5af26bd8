package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteConversationStore persists conversations and their transcripts in a
// single SQLite database under Root.
type SQLiteConversationStore struct {
	Root   string
	dbPath string

	mu   sync.Mutex
	db   *sql.DB
	once sync.Once
	err  error
}

func DefaultDataRoot() string {
	// Prefer XDG data dir (Linux/macOS). If unavailable, fall back to ~/.local/share.
	if base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); base != "" {
		return filepath.Join(base, "voice-agent", "storage")
	}
	if base, err := os.UserHomeDir(); err == nil && base != "" {
		return filepath.Join(base, ".local", "share", "voice-agent", "storage")
	}
	return filepath.Join(os.TempDir(), "voice-agent", "storage")
}

func NewSQLiteConversationStore(root string) (*SQLiteConversationStore, error) {
	if strings.TrimSpace(root) == "" {
		root = DefaultDataRoot()
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	st := &SQLiteConversationStore{
		Root:   root,
		dbPath: filepath.Join(root, "voice-agent.db"),
	}
	// Initialize eagerly so callers fail fast.
	if err := st.init(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLiteConversationStore) init() error {
	s.once.Do(func() {
		db, err := sql.Open("sqlite", s.dbPath)
		if err != nil {
			s.err = err
			return
		}
		// Keep sqlite responsive under contention.
		_, _ = db.Exec("PRAGMA busy_timeout = 5000;")
		_, _ = db.Exec("PRAGMA journal_mode = WAL;")
		_, _ = db.Exec("PRAGMA synchronous = NORMAL;")

		schema := []string{
			`CREATE TABLE IF NOT EXISTS conversations (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				summary TEXT,
				title_generated INTEGER NOT NULL DEFAULT 0,
				created_at_ns INTEGER NOT NULL,
				updated_at_ns INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at_ns);`,
			`CREATE TABLE IF NOT EXISTS messages (
				id TEXT NOT NULL,
				conversation_id TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				audio BLOB,
				created_at_ns INTEGER NOT NULL,
				PRIMARY KEY (conversation_id, id)
			);`,
			`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at_ns);`,
		}
		for _, stmt := range schema {
			if _, err := db.Exec(stmt); err != nil {
				_ = db.Close()
				s.err = err
				return
			}
		}

		s.db = db
	})
	return s.err
}

func (s *SQLiteConversationStore) dbConn() (*sql.DB, error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, errors.New("sqlite store unavailable")
	}
	return db, nil
}

func (s *SQLiteConversationStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteConversationStore) CreateConversation() (*Conversation, error) {
	db, err := s.dbConn()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	conv := &Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []*Message{},
	}
	_, err = db.Exec(
		`INSERT INTO conversations(id, title, summary, title_generated, created_at_ns, updated_at_ns)
		 VALUES(?, ?, NULL, 0, ?, ?)`,
		conv.ID, conv.Title, conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// LoadConversation returns the conversation with its messages in chronological
// order (ascending timestamp, id as tiebreaker).
func (s *SQLiteConversationStore) LoadConversation(id string) (*Conversation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("missing conversation id")
	}
	db, err := s.dbConn()
	if err != nil {
		return nil, err
	}

	var conv Conversation
	var summary sql.NullString
	var titleGenerated int
	var createdNS, updatedNS int64
	err = db.QueryRow(
		`SELECT id, title, summary, title_generated, created_at_ns, updated_at_ns
		 FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.Title, &summary, &titleGenerated, &createdNS, &updatedNS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("conversation not found")
		}
		return nil, err
	}
	if summary.Valid {
		conv.Summary = summary.String
	}
	conv.TitleGenerated = titleGenerated != 0
	conv.CreatedAt = time.Unix(0, createdNS)
	conv.UpdatedAt = time.Unix(0, updatedNS)

	msgs, err := s.LoadMessages(conv.ID)
	if err != nil {
		return &conv, err
	}
	conv.Messages = msgs
	return &conv, nil
}

func (s *SQLiteConversationStore) LoadMessages(conversationID string) ([]*Message, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, errors.New("missing conversation id")
	}
	db, err := s.dbConn()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(
		`SELECT id, conversation_id, role, content, audio, created_at_ns
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at_ns ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Message, 0, 64)
	for rows.Next() {
		var m Message
		var role string
		var audio []byte
		var createdNS int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &audio, &createdNS); err != nil {
			continue
		}
		m.Role = Role(role)
		m.Audio = audio
		m.CreatedAt = time.Unix(0, createdNS)
		out = append(out, &m)
	}
	return out, nil
}

// SaveConversation flushes title, summary and the generated flag. Message
// rows are written individually via InsertMessage/UpdateMessage.
func (s *SQLiteConversationStore) SaveConversation(conv *Conversation) error {
	if conv == nil {
		return errors.New("nil conversation")
	}
	if strings.TrimSpace(conv.ID) == "" {
		return errors.New("missing conversation id")
	}
	db, err := s.dbConn()
	if err != nil {
		return err
	}
	now := time.Now()
	conv.UpdatedAt = now
	_, err = db.Exec(
		`UPDATE conversations
		 SET title = ?, summary = ?, title_generated = ?, updated_at_ns = ?
		 WHERE id = ?`,
		conv.Title, nullIfEmpty(conv.Summary), boolToInt(conv.TitleGenerated), now.UnixNano(), conv.ID,
	)
	return err
}

func (s *SQLiteConversationStore) InsertMessage(msg *Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	if strings.TrimSpace(msg.ConversationID) == "" {
		return errors.New("missing conversation id")
	}
	if strings.TrimSpace(msg.ID) == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	db, err := s.dbConn()
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`INSERT OR REPLACE INTO messages(id, conversation_id, role, content, audio, created_at_ns)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.Audio, msg.CreatedAt.UnixNano(),
	)
	return err
}

// UpdateMessage rewrites the content of an existing message in place. The
// original timestamp is preserved so chronological order is unaffected.
func (s *SQLiteConversationStore) UpdateMessage(msg *Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	if strings.TrimSpace(msg.ID) == "" || strings.TrimSpace(msg.ConversationID) == "" {
		return errors.New("missing message id")
	}
	db, err := s.dbConn()
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`UPDATE messages SET content = ? WHERE conversation_id = ? AND id = ?`,
		msg.Content, msg.ConversationID, msg.ID,
	)
	return err
}

// DeleteConversation removes the conversation and all of its messages.
func (s *SQLiteConversationStore) DeleteConversation(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("missing conversation id")
	}
	db, err := s.dbConn()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New("conversation not found")
	}
	return tx.Commit()
}

// FetchAllSortedByRecencyDesc returns conversation rows, most recently
// updated first. Messages are not loaded; callers that need the transcript
// use LoadConversation.
func (s *SQLiteConversationStore) FetchAllSortedByRecencyDesc() ([]*Conversation, error) {
	db, err := s.dbConn()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(
		`SELECT id, title, summary, title_generated, created_at_ns, updated_at_ns
		 FROM conversations
		 ORDER BY updated_at_ns DESC, created_at_ns DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Conversation, 0, 16)
	for rows.Next() {
		var conv Conversation
		var summary sql.NullString
		var titleGenerated int
		var createdNS, updatedNS int64
		if err := rows.Scan(&conv.ID, &conv.Title, &summary, &titleGenerated, &createdNS, &updatedNS); err != nil {
			continue
		}
		if summary.Valid {
			conv.Summary = summary.String
		}
		conv.TitleGenerated = titleGenerated != 0
		conv.CreatedAt = time.Unix(0, createdNS)
		conv.UpdatedAt = time.Unix(0, updatedNS)
		out = append(out, &conv)
	}
	return out, nil
}

func (s *SQLiteConversationStore) ListConversations(limit int) ([]ConversationSummary, error) {
	db, err := s.dbConn()
	if err != nil {
		return nil, err
	}

	q := `
		SELECT c.id, c.title, c.summary, c.title_generated, c.created_at_ns, c.updated_at_ns,
		       COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.updated_at_ns DESC, c.created_at_ns DESC
	`
	args := []interface{}{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]ConversationSummary, 0, 16)
	for rows.Next() {
		var conv Conversation
		var summary sql.NullString
		var titleGenerated int
		var createdNS, updatedNS int64
		var count int
		if err := rows.Scan(&conv.ID, &conv.Title, &summary, &titleGenerated, &createdNS, &updatedNS, &count); err != nil {
			continue
		}
		if summary.Valid {
			conv.Summary = summary.String
		}
		conv.TitleGenerated = titleGenerated != 0
		conv.CreatedAt = time.Unix(0, createdNS)
		conv.UpdatedAt = time.Unix(0, updatedNS)
		summaries = append(summaries, ConversationSummary{
			Conversation: conv,
			MessageCount: count,
		})
	}
	return summaries, nil
}

func nullIfEmpty(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
