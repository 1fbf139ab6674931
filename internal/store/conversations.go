package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// LogMessage upserts the conversation for m.ThreadID and appends the
// message. Visitor, session and source are set once and never overwritten.
func (s *SQLiteStore) LogMessage(ctx context.Context, m *MessageLog) (int64, error) {
	if m == nil || strings.TrimSpace(m.ThreadID) == "" {
		return 0, errors.New("logging message: thread id is required")
	}
	if m.Role == "" {
		return 0, errors.New("logging message: role is required")
	}

	source, err := marshalOptional(m.Source)
	if err != nil {
		return 0, fmt.Errorf("encoding source: %w", err)
	}
	meta, err := marshalOptional(m.Meta)
	if err != nil {
		return 0, fmt.Errorf("encoding meta: %w", err)
	}

	var kind, payload, mode, date, clock sql.NullString
	if h := m.Handoff; h != nil {
		kind = nullString(h.Kind)
		mode = nullString(h.MeetingMode)
		date = nullString(h.MeetingDate)
		clock = nullString(h.MeetingTime)
		if h.Payload != nil {
			b, err := json.Marshal(h.Payload)
			if err != nil {
				return 0, fmt.Errorf("encoding handoff payload: %w", err)
			}
			payload = nullString(string(b))
		}
	}

	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning message log: %w", err)
	}
	defer tx.Rollback()

	var convID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO conversations (thread_id, brand_key, visitor_id, session_id, source, created_at, last_message_at)
		 VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET
			brand_key = COALESCE(excluded.brand_key, conversations.brand_key),
			last_message_at = excluded.last_message_at,
			visitor_id = COALESCE(conversations.visitor_id, excluded.visitor_id),
			session_id = COALESCE(conversations.session_id, excluded.session_id),
			source = COALESCE(conversations.source, excluded.source)
		 RETURNING id`,
		m.ThreadID, m.BrandKey, m.VisitorID, m.SessionID, source, now, now,
	).Scan(&convID)
	if err != nil {
		return 0, fmt.Errorf("upserting conversation: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages
			(conversation_id, role, text, raw_text, handoff_kind, handoff_payload, meta,
			 meeting_mode, meeting_date, meeting_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		convID, m.Role, nullString(m.Text), nullString(m.RawText), kind, payload, meta,
		mode, date, clock, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting message id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing message log: %w", err)
	}
	return id, nil
}

// GetConversation returns the conversation for threadID or ErrNotFound.
func (s *SQLiteStore) GetConversation(ctx context.Context, threadID string) (*Conversation, error) {
	c := &Conversation{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, thread_id, COALESCE(brand_key, ''), COALESCE(visitor_id, ''),
			COALESCE(session_id, ''), COALESCE(source, ''), created_at, last_message_at
		 FROM conversations WHERE thread_id = ?`, threadID,
	).Scan(&c.ID, &c.ThreadID, &c.BrandKey, &c.VisitorID, &c.SessionID, &c.Source,
		&c.CreatedAt, &c.LastMessageAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return c, nil
}

// ListMessages returns up to limit messages of a thread, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, threadID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.conversation_id, m.role, COALESCE(m.text, ''), COALESCE(m.raw_text, ''),
			COALESCE(m.handoff_kind, ''), COALESCE(m.handoff_payload, ''), COALESCE(m.meta, ''),
			COALESCE(m.meeting_mode, ''), COALESCE(m.meeting_date, ''), COALESCE(m.meeting_time, ''),
			m.admin_status, m.created_at
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.thread_id = ?
		 ORDER BY m.id ASC
		 LIMIT ?`, threadID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Text, &msg.RawText,
			&msg.HandoffKind, &msg.HandoffPayload, &msg.Meta,
			&msg.MeetingMode, &msg.MeetingDate, &msg.MeetingTime,
			&msg.AdminStatus, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalOptional(v map[string]any) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return nullString(string(b)), nil
}
