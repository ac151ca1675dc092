package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/diogoX451/jackson/internal/events"
)

type NATSBus struct {
	conn      *nats.Conn
	js        nats.JetStreamContext
	ephemeral bool
}

var _ events.Bus = (*NATSBus)(nil)

type Config struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	// Ephemeral subscriptions only see new messages and leave no consumer
	// behind. Several watchers can then follow the same subject.
	Ephemeral     bool
}

func New(cfg Config) (*NATSBus, error) {
	name := cfg.Name
	if name == "" {
		name = "jackson"
	}
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Name(name),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connection failed: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream init failed: %w", err)
	}

	return &NATSBus{conn: conn, js: js, ephemeral: cfg.Ephemeral}, nil
}

// CreateStream creates the stream unless it already exists.
func (n *NATSBus) CreateStream(cfg events.StreamConfig) error {
	storage := nats.FileStorage
	if cfg.Storage == events.StorageMemory {
		storage = nats.MemoryStorage
	}

	retention := nats.LimitsPolicy
	switch cfg.Retention {
	case events.RetentionInterest:
		retention = nats.InterestPolicy
	case events.RetentionWorkQueue:
		retention = nats.WorkQueuePolicy
	}

	_, err := n.js.AddStream(&nats.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		Retention: retention,
		MaxMsgs:   cfg.MaxMsgs,
		MaxBytes:  cfg.MaxBytes,
		MaxAge:    cfg.MaxAge,
		Storage:   storage,
		Replicas:  cfg.Replicas,
	})
	if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil
	}
	return err
}

func (n *NATSBus) SetupWiringStream() error {
	if err := n.CreateStream(events.WiringStream()); err != nil {
		return fmt.Errorf("wiring stream: %w", err)
	}
	return nil
}

func (n *NATSBus) Publish(ctx context.Context, subject string, payload []byte) error {
	_, err := n.js.Publish(subject, payload, nats.Context(ctx))
	return err
}

func (n *NATSBus) PublishEvent(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return n.Publish(ctx, subject, data)
}

func (n *NATSBus) Subscribe(subject string, handler events.Handler) (events.Subscription, error) {
	callback := func(msg *nats.Msg) {
		// No ack on error: JetStream redelivers.
		_ = handler(context.Background(), &natsMessage{msg: msg})
	}

	opts := []nats.SubOpt{nats.ManualAck()}
	if n.ephemeral {
		opts = append(opts, nats.DeliverNew())
	} else {
		opts = append(opts, nats.Durable(durableFromSubject(subject)))
	}

	sub, err := n.js.Subscribe(subject, callback, opts...)
	if err != nil {
		return nil, err
	}
	return &natsSubscription{sub: sub}, nil
}

func durableFromSubject(subject string) string {
	var b strings.Builder
	b.Grow(len(subject))
	for _, r := range subject {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (n *NATSBus) Close() error {
	return n.conn.Drain()
}

type natsMessage struct {
	msg *nats.Msg
}

func (m *natsMessage) Data() []byte { return m.msg.Data }

func (m *natsMessage) Subject() string { return m.msg.Subject }

func (m *natsMessage) Ack() error { return m.msg.Ack() }

func (m *natsMessage) Nak(delay ...time.Duration) error {
	if len(delay) > 0 {
		return m.msg.NakWithDelay(delay[0])
	}
	return m.msg.Nak()
}

func (m *natsMessage) Metadata() (*events.MsgMetadata, error) {
	meta, err := m.msg.Metadata()
	if err != nil {
		return nil, err
	}
	return &events.MsgMetadata{
		Sequence:   meta.Sequence.Stream,
		Time:       meta.Timestamp,
		Stream:     meta.Stream,
		Consumer:   meta.Consumer,
		Deliveries: int(meta.NumDelivered),
	}, nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
