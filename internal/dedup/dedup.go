// Package dedup suppresses repeated handoff submissions for a conversation.
//
// Entries are process-local. Running several replicas means each one keeps
// its own window; swap the Backend for a shared store if that matters.
package dedup

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultWindow is the cool-down during which an identical submission for
// the same conversation is dropped.
const DefaultWindow = 5 * time.Minute

// Entry is the last admitted submission for one conversation.
type Entry struct {
	Hash string
	At   time.Time
}

// Backend stores one Entry per conversation.
type Backend interface {
	Get(conversationID string) (Entry, bool)
	Set(conversationID string, e Entry)
}

// MemoryBackend keeps entries in a go-cache map that evicts them after ttl.
type MemoryBackend struct {
	c *gocache.Cache
}

func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{c: gocache.New(ttl, 2*ttl)}
}

func (m *MemoryBackend) Get(conversationID string) (Entry, bool) {
	v, ok := m.c.Get(conversationID)
	if !ok {
		return Entry{}, false
	}
	e, ok := v.(Entry)
	return e, ok
}

func (m *MemoryBackend) Set(conversationID string, e Entry) {
	m.c.Set(conversationID, e, gocache.DefaultExpiration)
}

// Len reports the number of live entries.
func (m *MemoryBackend) Len() int {
	return m.c.ItemCount()
}

// Deduper decides whether a submission is new. Safe for concurrent use;
// for one conversation the last admitted submission wins.
type Deduper struct {
	mu      sync.Mutex
	backend Backend
	window  time.Duration
	now     func() time.Time
}

type Option func(*Deduper)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Deduper) { d.now = now }
}

// WithBackend replaces the in-memory backend.
func WithBackend(b Backend) Option {
	return func(d *Deduper) { d.backend = b }
}

func New(window time.Duration, opts ...Option) *Deduper {
	if window <= 0 {
		window = DefaultWindow
	}
	d := &Deduper{window: window, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	if d.backend == nil {
		d.backend = NewMemoryBackend(window)
	}
	return d
}

// Window returns the configured cool-down.
func (d *Deduper) Window() time.Duration {
	return d.window
}

// Admit returns true when payload is not a repeat of the conversation's
// last submission within the window. Admitted payloads replace the entry.
func (d *Deduper) Admit(conversationID string, payload any) (admitted bool, hash string, err error) {
	hash, err = Hash(payload)
	if err != nil {
		return false, "", err
	}
	return d.AdmitHash(conversationID, hash), hash, nil
}

// AdmitHash is Admit for a precomputed hash.
func (d *Deduper) AdmitHash(conversationID, hash string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if prev, ok := d.backend.Get(conversationID); ok && prev.Hash == hash && now.Sub(prev.At) < d.window {
		return false
	}
	d.backend.Set(conversationID, Entry{Hash: hash, At: now})
	return true
}

// Hash is the SHA-256 of the canonical JSON encoding of payload. Map keys
// are sorted by encoding/json, so equal payloads hash equally.
func Hash(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload for hash: %w", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(b)), nil
}
