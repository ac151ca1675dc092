// Package eventstest provides an in-process events.Bus for tests.
// Delivery is synchronous and at most once.
package eventstest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/diogoX451/jackson/internal/events"
)

type Bus struct {
	mu      sync.Mutex
	subs    map[int]*subscription
	nextID  int
	seq     uint64
	streams map[string]events.StreamConfig
	closed  bool
}

var _ events.Bus = (*Bus)(nil)

func New() *Bus {
	return &Bus{
		subs:    make(map[int]*subscription),
		streams: make(map[string]events.StreamConfig),
	}
}

func (b *Bus) CreateStream(cfg events.StreamConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.streams[cfg.Name]; !ok {
		b.streams[cfg.Name] = cfg
	}
	return nil
}

func (b *Bus) Publish(ctx context.Context, subject string, payload []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("publish %s: bus closed", subject)
	}
	b.seq++
	seq := b.seq
	var targets []*subscription
	for _, sub := range b.subs {
		if subjectMatches(sub.pattern, subject) {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		msg := &message{subject: subject, data: payload, seq: seq, at: time.Now()}
		_ = sub.handler(ctx, msg)
	}
	return nil
}

func (b *Bus) PublishEvent(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.Publish(ctx, subject, data)
}

func (b *Bus) Subscribe(subject string, handler events.Handler) (events.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &subscription{bus: b, id: b.nextID, pattern: subject, handler: handler}
	b.subs[sub.id] = sub
	return sub, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	clear(b.subs)
	return nil
}

type subscription struct {
	bus     *Bus
	id      int
	pattern string
	handler events.Handler
}

func (s *subscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
	return nil
}

type message struct {
	subject string
	data    []byte
	seq     uint64
	at      time.Time
}

func (m *message) Data() []byte { return m.data }
func (m *message) Subject() string { return m.subject }
func (m *message) Ack() error { return nil }
func (m *message) Nak(...time.Duration) error { return nil }
func (m *message) Metadata() (*events.MsgMetadata, error) {
	return &events.MsgMetadata{Sequence: m.seq, Time: m.at, Deliveries: 1}, nil
}

// subjectMatches applies NATS wildcard rules: "*" matches one token and a
// trailing ">" matches the rest.
func subjectMatches(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")

	for i, tok := range p {
		if tok == ">" {
			return i == len(p)-1 && len(s) > i
		}
		if i >= len(s) {
			return false
		}
		if tok != "*" && tok != s[i] {
			return false
		}
	}
	return len(p) == len(s)
}
