package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSaveHandoff_AndRecent(t *testing.T) {
	now := time.Date(2025, 11, 5, 10, 0, 0, 0, time.UTC)
	s := newTestStore(t, func() time.Time { return now })
	ctx := context.Background()

	first := &Handoff{ThreadID: "t1", BrandKey: "demo", Kind: "customer_request", Record: `{"a":1}`, Source: "fence"}
	if _, err := s.SaveHandoff(ctx, first); err != nil {
		t.Fatalf("SaveHandoff: %v", err)
	}
	if first.ID == 0 || first.Hash != HashHandoff("t1", `{"a":1}`) || first.AdminStatus != StatusNew {
		t.Fatalf("defaults not filled: %+v", first)
	}

	now = now.Add(time.Minute)
	second := &Handoff{ThreadID: "t2", Kind: "customer_request", Record: `{"a":2}`, Hash: "custom"}
	if _, err := s.SaveHandoff(ctx, second); err != nil {
		t.Fatalf("SaveHandoff: %v", err)
	}

	got, err := s.RecentHandoffs(ctx, 10)
	if err != nil {
		t.Fatalf("RecentHandoffs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 handoffs, got %d", len(got))
	}
	if got[0].ThreadID != "t2" || got[0].Hash != "custom" || got[0].BrandKey != "" {
		t.Fatalf("newest first expected, got %+v", got[0])
	}
	if got[1].Source != "fence" || !got[1].CreatedAt.Equal(time.Date(2025, 11, 5, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected older handoff %+v", got[1])
	}

	got, err = s.RecentHandoffs(ctx, 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("limit not applied: %d %v", len(got), err)
	}
}

func TestSaveHandoff_Validation(t *testing.T) {
	s := newTestStore(t, nil)
	if _, err := s.SaveHandoff(context.Background(), &Handoff{Record: "{}"}); err == nil {
		t.Fatal("expected error without thread id")
	}
	if _, err := s.SaveHandoff(context.Background(), &Handoff{ThreadID: "t"}); err == nil {
		t.Fatal("expected error without record")
	}
}

func TestSetHandoffStatus(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	h := &Handoff{ThreadID: "t1", Kind: "customer_request", Record: "{}"}
	if _, err := s.SaveHandoff(ctx, h); err != nil {
		t.Fatalf("SaveHandoff: %v", err)
	}

	if err := s.SetHandoffStatus(ctx, h.ID, "contacted", "arandı"); err != nil {
		t.Fatalf("SetHandoffStatus: %v", err)
	}
	got, err := s.RecentHandoffs(ctx, 1)
	if err != nil {
		t.Fatalf("RecentHandoffs: %v", err)
	}
	if got[0].AdminStatus != StatusContacted || got[0].AdminNotes != "arandı" {
		t.Fatalf("status not updated: %+v", got[0])
	}

	if err := s.SetHandoffStatus(ctx, h.ID, "lost", ""); err == nil {
		t.Fatal("expected unknown status error")
	}
	if err := s.SetHandoffStatus(ctx, 999, StatusClosed, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHashHandoff(t *testing.T) {
	a := HashHandoff("t1", `{"a":1}`)
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
	if a == HashHandoff("t2", `{"a":1}`) {
		t.Fatal("thread id must change the hash")
	}
	if HashHandoff("t1", "x") != HashHandoff("t1", "x") {
		t.Fatal("hash must be stable")
	}
	// separator keeps ("ab","c") and ("a","bc") apart
	if HashHandoff("ab", "c") == HashHandoff("a", "bc") {
		t.Fatal("separator missing")
	}
}
