package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hurttlocker/intake/internal/store"
)

// StoreChannel persists admitted handoffs.
type StoreChannel struct {
	store store.Store
}

func NewStoreChannel(s store.Store) *StoreChannel {
	return &StoreChannel{store: s}
}

func (c *StoreChannel) Name() string { return "store" }

func (c *StoreChannel) Send(ctx context.Context, s Submission) error {
	record, err := json.Marshal(s.Record)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	_, err = c.store.SaveHandoff(ctx, &store.Handoff{
		ThreadID: s.ConversationID,
		BrandKey: s.Brand.Key,
		Kind:     s.Kind,
		Hash:     s.Hash,
		Record:   string(record),
		Source:   string(s.Origin),
	})
	return err
}
