// Package session runs one side of a jackson session: the JACK server,
// the JackTrip bridge and the wiring layer, until the context ends.
package session

import (
	"time"

	"go.uber.org/zap"

	eventadapter "github.com/diogoX451/jackson/internal/adapters/events"
	"github.com/diogoX451/jackson/internal/config"
	"github.com/diogoX451/jackson/internal/core/ports"
	"github.com/diogoX451/jackson/internal/events/nats"
	"github.com/diogoX451/jackson/internal/jack"
)

// jackStartup bounds how long a freshly started jackd may take to answer.
var jackStartup = jack.RetryPolicy{Attempts: 100, Interval: 100 * time.Millisecond}

// bridgeRestartDelay paces JackTrip restarts after a peer disconnects.
const bridgeRestartDelay = 500 * time.Millisecond

type options struct {
	graph     ports.AudioGraph
	processes bool
}

// Option adjusts how a session reaches the audio engine.
type Option func(*options)

// WithGraph replaces the JACK command-line tools with graph. Used with an
// in-memory graph in tests.
func WithGraph(graph ports.AudioGraph) Option {
	return func(o *options) { o.graph = graph }
}

// WithoutProcesses skips jackd and JackTrip.
func WithoutProcesses() Option {
	return func(o *options) { o.processes = false }
}

func buildOptions(opts []Option) options {
	o := options{processes: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func retryPolicy(cfg config.RetryConfig) jack.RetryPolicy {
	return jack.RetryPolicy{Attempts: cfg.Attempts, Interval: cfg.Interval}
}

// openEvents publishes wiring events to NATS when a URL is configured.
// Events are best effort: an unreachable server only logs a warning.
func openEvents(cfg config.NATSConfig, name string, log *zap.Logger) ports.WiringEvents {
	if cfg.URL == "" {
		return eventadapter.Noop{}
	}

	bus, err := nats.New(nats.Config{
		URL:           cfg.URL,
		Name:          name,
		MaxReconnects: cfg.MaxReconnects,
		ReconnectWait: 2 * time.Second,
	})
	if err != nil {
		log.Warn("nats unavailable, wiring events disabled", zap.String("url", cfg.URL), zap.Error(err))
		return eventadapter.Noop{}
	}
	if err := bus.SetupWiringStream(); err != nil {
		log.Warn("wiring stream setup failed, wiring events disabled", zap.Error(err))
		_ = bus.Close()
		return eventadapter.Noop{}
	}
	log.Info("publishing wiring events", zap.String("url", cfg.URL))
	return eventadapter.NewWiringPublisher(bus)
}
