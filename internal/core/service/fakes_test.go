package service_test

import (
	"context"
	"sync"

	"github.com/diogoX451/jackson/internal/core/domain"
	"github.com/diogoX451/jackson/internal/core/ports"
)

type recordingEvents struct {
	mu        sync.Mutex
	connected []ports.WiringEvent
	failed    []ports.WiringEvent
}

func (r *recordingEvents) Connected(_ context.Context, ev ports.WiringEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, ev)
	return nil
}

func (r *recordingEvents) Failed(_ context.Context, ev ports.WiringEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, ev)
	return nil
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) counts() (connected, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connected), len(r.failed)
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []ports.JournalEntry
}

func (j *recordingJournal) Record(_ context.Context, entry ports.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func (j *recordingJournal) Entries(_ context.Context, session string) ([]ports.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []ports.JournalEntry
	for _, e := range j.entries {
		if e.Session == session {
			out = append(out, e)
		}
	}
	return out, nil
}

func (j *recordingJournal) Close() error { return nil }

// countingRemote wraps a Connector and runs before on every call.
type countingRemote struct {
	inner  ports.Connector
	before func(requests []domain.ConnectRequest)

	mu    sync.Mutex
	calls int
}

func (r *countingRemote) Capability(ctx context.Context) (domain.Capability, error) {
	return r.inner.Capability(ctx)
}

func (r *countingRemote) Connect(ctx context.Context, requests []domain.ConnectRequest) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.before != nil {
		r.before(requests)
	}
	return r.inner.Connect(ctx, requests)
}

func (r *countingRemote) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
