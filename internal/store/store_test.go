package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// newTestStore creates an in-memory store with a fixed clock.
func newTestStore(t *testing.T, now func() time.Time) Store {
	t.Helper()
	if now == nil {
		now = time.Now
	}
	s, err := NewStore(StoreConfig{DBPath: ":memory:", Now: now})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore(t *testing.T) {
	s := newTestStore(t, nil)
	ss := s.(*SQLiteStore)

	for _, table := range []string{"meta", "conversations", "messages", "handoffs"} {
		var name string
		err := ss.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}

	var count int
	if err := ss.db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('messages') WHERE name='admin_status'").Scan(&count); err != nil {
		t.Fatalf("pragma_table_info: %v", err)
	}
	if count != 1 {
		t.Fatalf("admin_status column missing")
	}
}

func TestNewStore_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "intake.db")
	for i := 0; i < 2; i++ {
		s, err := NewStore(StoreConfig{DBPath: path})
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if _, err := s.LogMessage(context.Background(), &MessageLog{ThreadID: "thread_1", Role: "user", Text: "merhaba"}); err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
		s.Close()
	}

	s, err := NewStore(StoreConfig{DBPath: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	st, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Conversations != 1 || st.Messages != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestLogMessage_UpsertsConversation(t *testing.T) {
	t0 := time.Date(2025, 11, 5, 10, 0, 0, 0, time.UTC)
	now := t0
	s := newTestStore(t, func() time.Time { return now })
	ctx := context.Background()

	_, err := s.LogMessage(ctx, &MessageLog{
		BrandKey:  "demo",
		ThreadID:  "thread_1",
		VisitorID: "v-1",
		SessionID: "s-1",
		Source:    map[string]any{"page": "/iletisim"},
		Role:      "user",
		Text:      "Merhaba",
	})
	if err != nil {
		t.Fatalf("LogMessage: %v", err)
	}

	now = t0.Add(time.Minute)
	_, err = s.LogMessage(ctx, &MessageLog{
		BrandKey:  "demo",
		ThreadID:  "thread_1",
		VisitorID: "v-2",
		Role:      "assistant",
		Text:      "Talebinizi ekibe ilettim.",
		RawText:   "Talebinizi ekibe ilettim.\n```handoff\n{}\n```",
		Handoff: &HandoffRef{
			Kind:        "customer_request",
			Payload:     map[string]any{"contact": map[string]any{"name": "Ali Veli"}},
			MeetingMode: "Online Görüşme",
			MeetingDate: "2025-01-15",
			MeetingTime: "14:00",
		},
	})
	if err != nil {
		t.Fatalf("LogMessage: %v", err)
	}

	c, err := s.GetConversation(ctx, "thread_1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if c.VisitorID != "v-1" || c.SessionID != "s-1" || c.BrandKey != "demo" {
		t.Fatalf("first visitor/session must stick: %+v", c)
	}
	if !c.CreatedAt.Equal(t0) || !c.LastMessageAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("unexpected timestamps created=%v last=%v", c.CreatedAt, c.LastMessageAt)
	}
	var src map[string]any
	if err := json.Unmarshal([]byte(c.Source), &src); err != nil || src["page"] != "/iletisim" {
		t.Fatalf("unexpected source %q (%v)", c.Source, err)
	}

	msgs, err := s.ListMessages(ctx, "thread_1", 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].HandoffKind != "" || msgs[0].AdminStatus != "NEW" {
		t.Fatalf("unexpected first message %+v", msgs[0])
	}
	a := msgs[1]
	if a.HandoffKind != "customer_request" || a.MeetingDate != "2025-01-15" || a.MeetingTime != "14:00" {
		t.Fatalf("unexpected handoff columns %+v", a)
	}
	if a.HandoffPayload != `{"contact":{"name":"Ali Veli"}}` {
		t.Fatalf("unexpected payload %s", a.HandoffPayload)
	}
}

func TestLogMessage_RequiresThreadAndRole(t *testing.T) {
	s := newTestStore(t, nil)
	if _, err := s.LogMessage(context.Background(), &MessageLog{Role: "user"}); err == nil {
		t.Fatal("expected error without thread id")
	}
	if _, err := s.LogMessage(context.Background(), &MessageLog{ThreadID: "t"}); err == nil {
		t.Fatal("expected error without role")
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	s := newTestStore(t, nil)
	if _, err := s.GetConversation(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListMessages_Limit(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	for _, text := range []string{"bir", "iki", "üç"} {
		if _, err := s.LogMessage(ctx, &MessageLog{ThreadID: "t", Role: "user", Text: text}); err != nil {
			t.Fatalf("LogMessage: %v", err)
		}
	}
	msgs, err := s.ListMessages(ctx, "t", 2)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text != "bir" || msgs[1].Text != "iki" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}
