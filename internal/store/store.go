// Package store provides the SQLite storage layer for intake.
//
// One database file holds:
// - conversations keyed by the upstream thread id
// - every user and assistant message with raw and sanitized text
// - admitted handoff records with their admin status
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.intake/intake.db"

// ErrNotFound is returned when a conversation or handoff does not exist.
var ErrNotFound = errors.New("not found")

// Conversation is one chat thread for one brand.
type Conversation struct {
	ID            int64
	ThreadID      string
	BrandKey      string
	VisitorID     string
	SessionID     string
	Source        string // JSON
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// Message is one logged chat message.
type Message struct {
	ID             int64
	ConversationID int64
	Role           string
	Text           string
	RawText        string
	HandoffKind    string
	HandoffPayload string // JSON
	Meta           string // JSON
	MeetingMode    string
	MeetingDate    string
	MeetingTime    string
	AdminStatus    string
	CreatedAt      time.Time
}

// MessageLog is the input to LogMessage. The conversation is upserted from
// the thread and visitor fields; Handoff is optional.
type MessageLog struct {
	BrandKey  string
	ThreadID  string
	VisitorID string
	SessionID string
	Source    map[string]any

	Role    string
	Text    string
	RawText string
	Meta    map[string]any

	Handoff *HandoffRef
}

// HandoffRef describes a handoff attached to a logged message.
type HandoffRef struct {
	Kind        string
	Payload     any
	MeetingMode string
	MeetingDate string
	MeetingTime string
}

// Handoff is an admitted, normalized handoff record.
type Handoff struct {
	ID          int64
	ThreadID    string
	BrandKey    string
	Kind        string
	Hash        string
	Record      string // JSON
	Source      string
	AdminStatus string
	AdminNotes  string
	CreatedAt   time.Time
}

// Stats holds row counts for diagnostics.
type Stats struct {
	Conversations int64
	Messages      int64
	Handoffs      int64
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
	Now    func() time.Time
}

// Store is the persistence interface used by the chat service, the
// dispatcher and the operator tools.
type Store interface {
	// Conversations and messages
	LogMessage(ctx context.Context, m *MessageLog) (int64, error)
	GetConversation(ctx context.Context, threadID string) (*Conversation, error)
	ListMessages(ctx context.Context, threadID string, limit int) ([]*Message, error)

	// Handoffs
	SaveHandoff(ctx context.Context, h *Handoff) (int64, error)
	RecentHandoffs(ctx context.Context, limit int) ([]*Handoff, error)
	SetHandoffStatus(ctx context.Context, id int64, status, notes string) error

	// Observability
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		dbPath: cfg.DBPath,
		now:    cfg.Now,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stats counts rows in each table.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	for table, dst := range map[string]*int64{
		"conversations": &st.Conversations,
		"messages":      &st.Messages,
		"handoffs":      &st.Handoffs,
	} {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(dst); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
	}
	return st, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
