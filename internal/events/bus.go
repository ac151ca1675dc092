package events

import (
	"context"
	"time"
)

const (
	// StreamWiring keeps the wiring outcomes of both machines.
	StreamWiring = "JACKSON_WIRING"

	SubjectWiring    = "jackson.wiring.>"
	SubjectConnected = "jackson.wiring.connected"
	SubjectFailed    = "jackson.wiring.failed"
)

// Bus is the event queue behind the wiring events.
type Bus interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	PublishEvent(ctx context.Context, subject string, event any) error

	// Subscribe registers a push handler. A handler error leaves the
	// message unacked for redelivery.
	Subscribe(subject string, handler Handler) (Subscription, error)

	CreateStream(cfg StreamConfig) error

	Close() error
}

type Handler func(ctx context.Context, msg Message) error

type Message interface {
	Data() []byte
	Subject() string
	Ack() error
	Nak(delay ...time.Duration) error
	Metadata() (*MsgMetadata, error)
}

type MsgMetadata struct {
	Sequence   uint64
	Time       time.Time
	Stream     string
	Consumer   string
	Deliveries int
}

type Subscription interface {
	Unsubscribe() error
}

type StreamConfig struct {
	Name      string
	Subjects  []string
	Retention RetentionPolicy
	MaxMsgs   int64
	MaxBytes  int64
	MaxAge    time.Duration
	Storage   StorageType
	Replicas  int
}

type RetentionPolicy int

const (
	RetentionLimits RetentionPolicy = iota
	RetentionInterest
	RetentionWorkQueue
)

type StorageType int

const (
	StorageFile StorageType = iota
	StorageMemory
)

// WiringStream is the stream config for the wiring subjects.
func WiringStream() StreamConfig {
	return StreamConfig{
		Name:      StreamWiring,
		Subjects:  []string{SubjectWiring},
		Retention: RetentionLimits,
		MaxMsgs:   100000,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   StorageFile,
	}
}
