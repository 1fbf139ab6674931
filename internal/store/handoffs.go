package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Admin statuses for handoffs.
const (
	StatusNew       = "NEW"
	StatusContacted = "CONTACTED"
	StatusClosed    = "CLOSED"
)

// SaveHandoff stores an admitted handoff. Hash defaults to HashHandoff of the
// thread and record.
func (s *SQLiteStore) SaveHandoff(ctx context.Context, h *Handoff) (int64, error) {
	if h == nil || strings.TrimSpace(h.ThreadID) == "" {
		return 0, errors.New("saving handoff: thread id is required")
	}
	if h.Record == "" {
		return 0, errors.New("saving handoff: record is required")
	}
	if h.Hash == "" {
		h.Hash = HashHandoff(h.ThreadID, h.Record)
	}
	if h.AdminStatus == "" {
		h.AdminStatus = StatusNew
	}
	h.CreatedAt = s.now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO handoffs (thread_id, brand_key, kind, hash, record, source, admin_status, admin_notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ThreadID, nullString(h.BrandKey), h.Kind, h.Hash, h.Record, nullString(h.Source),
		h.AdminStatus, nullString(h.AdminNotes), h.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting handoff: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting handoff id: %w", err)
	}
	h.ID = id
	return id, nil
}

// RecentHandoffs returns the newest handoffs first.
func (s *SQLiteStore) RecentHandoffs(ctx context.Context, limit int) ([]*Handoff, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, COALESCE(brand_key, ''), kind, hash, record, COALESCE(source, ''),
			admin_status, COALESCE(admin_notes, ''), created_at
		 FROM handoffs
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing handoffs: %w", err)
	}
	defer rows.Close()

	var out []*Handoff
	for rows.Next() {
		h := &Handoff{}
		if err := rows.Scan(&h.ID, &h.ThreadID, &h.BrandKey, &h.Kind, &h.Hash, &h.Record, &h.Source,
			&h.AdminStatus, &h.AdminNotes, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning handoff: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SetHandoffStatus updates the admin triage fields of a handoff.
func (s *SQLiteStore) SetHandoffStatus(ctx context.Context, id int64, status, notes string) error {
	status = strings.ToUpper(strings.TrimSpace(status))
	switch status {
	case StatusNew, StatusContacted, StatusClosed:
	default:
		return fmt.Errorf("unknown handoff status %q", status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE handoffs SET admin_status = ?, admin_notes = ? WHERE id = ?`,
		status, nullString(notes), id,
	)
	if err != nil {
		return fmt.Errorf("updating handoff status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating handoff status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
