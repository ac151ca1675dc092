// Package memory keeps the wiring journal in process memory.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/diogoX451/jackson/internal/core/ports"
)

type session struct {
	entries []ports.JournalEntry
	expires time.Time
}

// Journal expires a session ttl after its last record, like the Redis
// journal does.
type Journal struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	clock    clock.Clock
}

var _ ports.Journal = (*Journal)(nil)

func New(ttl time.Duration) *Journal {
	return NewWithClock(ttl, clock.New())
}

func NewWithClock(ttl time.Duration, clk clock.Clock) *Journal {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Journal{
		sessions: make(map[string]*session),
		ttl:      ttl,
		clock:    clk,
	}
}

func (j *Journal) Record(_ context.Context, entry ports.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.clock.Now()
	s, ok := j.sessions[entry.Session]
	if !ok || now.After(s.expires) {
		s = &session{}
		j.sessions[entry.Session] = s
	}
	s.entries = append(s.entries, entry)
	s.expires = now.Add(j.ttl)
	return nil
}

func (j *Journal) Entries(_ context.Context, id string) ([]ports.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	s, ok := j.sessions[id]
	if !ok {
		return []ports.JournalEntry{}, nil
	}
	if j.clock.Now().After(s.expires) {
		delete(j.sessions, id)
		return []ports.JournalEntry{}, nil
	}
	return slices.Clone(s.entries), nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	clear(j.sessions)
	return nil
}
