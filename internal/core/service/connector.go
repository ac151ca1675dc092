package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/diogoX451/jackson/internal/core/domain"
	"github.com/diogoX451/jackson/internal/core/ports"
	"github.com/diogoX451/jackson/internal/jack"
	"github.com/diogoX451/jackson/internal/metrics"
)

const machineServer = "server"

// Connector validates and executes wiring requests against the server's
// graph. It keeps no state across requests besides the client handle.
type Connector struct {
	client  *jack.Client
	policy  jack.RetryPolicy
	journal ports.Journal
	events  ports.WiringEvents
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

var _ ports.Connector = (*Connector)(nil)

type ConnectorOption func(*Connector)

func WithConnectorRetry(policy jack.RetryPolicy) ConnectorOption {
	return func(c *Connector) { c.policy = policy }
}

func WithJournal(j ports.Journal) ConnectorOption {
	return func(c *Connector) { c.journal = j }
}

func WithConnectorEvents(ev ports.WiringEvents) ConnectorOption {
	return func(c *Connector) { c.events = ev }
}

func WithConnectorMetrics(m *metrics.Metrics) ConnectorOption {
	return func(c *Connector) { c.metrics = m }
}

func NewConnector(client *jack.Client, log *zap.Logger, opts ...ConnectorOption) *Connector {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Connector{
		client: client,
		policy: jack.RetryPolicy{Attempts: jack.SteadyAttempts, Interval: jack.DefaultRetryInterval},
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capability counts the physical system ports and reads the engine
// settings. Inputs are the ports that accept audio from the graph.
func (c *Connector) Capability(ctx context.Context) (domain.Capability, error) {
	inputs, err := c.countSystem(ports.PortIsInput | ports.PortIsPhysical)
	if err != nil {
		return domain.Capability{}, fmt.Errorf("list input ports: %w", err)
	}
	outputs, err := c.countSystem(ports.PortIsOutput | ports.PortIsPhysical)
	if err != nil {
		return domain.Capability{}, fmt.Errorf("list output ports: %w", err)
	}
	rate, err := c.client.SampleRate()
	if err != nil {
		return domain.Capability{}, fmt.Errorf("read sample rate: %w", err)
	}
	size, err := c.client.BufferSize()
	if err != nil {
		return domain.Capability{}, fmt.Errorf("read buffer size: %w", err)
	}

	return domain.Capability{
		InputChannelCount:  inputs,
		OutputChannelCount: outputs,
		SampleRate:         rate,
		BufferSize:         size,
	}, nil
}

func (c *Connector) countSystem(flags ports.PortFlags) (int, error) {
	names, err := c.client.Ports(flags)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, name := range names {
		if strings.HasPrefix(name, domain.SystemClient+":") {
			n++
		}
	}
	return n, nil
}

// Connect handles requests in order and stops at the first failure.
// Entries before the failing one stay connected.
//
// A send destination must have no existing connections, with one
// exception: when its only connection is the requested source the
// request succeeds without a native connect, so repeated requests from a
// reconnecting client are harmless.
func (c *Connector) Connect(ctx context.Context, requests []domain.ConnectRequest) error {
	session := SessionFrom(ctx)
	for _, req := range requests {
		if err := c.connect(ctx, session, req); err != nil {
			c.recordFailure(ctx, session, req, err)
			return err
		}
	}
	return nil
}

func (c *Connector) connect(ctx context.Context, session string, req domain.ConnectRequest) error {
	log := c.log.With(
		zap.String("session", session),
		zap.Stringer("source", req.Source),
		zap.Stringer("destination", req.Destination),
		zap.String("role", string(req.Role)))

	if err := c.lookup(domain.SideSource, req.Source); err != nil {
		return err
	}
	if err := c.lookup(domain.SideDestination, req.Destination); err != nil {
		return err
	}

	if req.Role == domain.RoleSend {
		existing, err := c.client.Connections(req.Destination)
		if err != nil {
			return fmt.Errorf("connections of %s: %w", req.Destination, err)
		}
		if len(existing) == 1 && existing[0] == req.Source.String() {
			log.Debug("already wired")
			c.metrics.ConnectRequest(string(req.Role), metrics.ResultOK)
			return nil
		}
		if len(existing) > 0 {
			return &domain.PlaybackPortAlreadyHasConnectionsError{
				Port:                req.Destination,
				ExistingConnections: existing,
			}
		}
	}

	if err := jack.RetryConnect(ctx, c.client, req.Source, req.Destination, c.policy); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warn("connect failed", zap.Error(err))
		return &domain.FailedToConnectPortsError{Source: req.Source, Destination: req.Destination}
	}

	c.metrics.ConnectRequest(string(req.Role), metrics.ResultOK)
	c.recordSuccess(ctx, session, req)
	return nil
}

func (c *Connector) lookup(side domain.PortSide, name domain.PortName) error {
	ok, err := c.client.PortExists(name)
	if err != nil {
		return fmt.Errorf("lookup %s port %s: %w", side, name, err)
	}
	if !ok {
		return &domain.PortNotFoundError{Side: side, Name: name}
	}
	return nil
}

func (c *Connector) recordSuccess(ctx context.Context, session string, req domain.ConnectRequest) {
	at := c.now()
	if c.journal != nil {
		entry := ports.JournalEntry{
			Session:     session,
			Role:        req.Role,
			Source:      req.Source,
			Destination: req.Destination,
			ConnectedAt: at,
		}
		if err := c.journal.Record(ctx, entry); err != nil {
			c.log.Warn("journal record failed", zap.Error(err))
		}
	}
	if c.events != nil {
		ev := ports.WiringEvent{
			Session:     session,
			Machine:     machineServer,
			Role:        req.Role,
			Source:      req.Source,
			Destination: req.Destination,
			At:          at,
		}
		if err := c.events.Connected(ctx, ev); err != nil {
			c.log.Warn("publish connected event failed", zap.Error(err))
		}
	}
}

func (c *Connector) recordFailure(ctx context.Context, session string, req domain.ConnectRequest, err error) {
	result := metrics.ResultFailed
	var connectErr domain.ConnectError
	if errors.As(err, &connectErr) {
		result = string(connectErr.Kind())
	}
	c.metrics.ConnectRequest(string(req.Role), result)

	if c.events == nil {
		return
	}
	ev := ports.WiringEvent{
		Session:     session,
		Machine:     machineServer,
		Role:        req.Role,
		Source:      req.Source,
		Destination: req.Destination,
		Error:       err.Error(),
		At:          c.now(),
	}
	if connectErr != nil {
		ev.ErrorKind = connectErr.Kind()
	}
	if pubErr := c.events.Failed(context.WithoutCancel(ctx), ev); pubErr != nil {
		c.log.Warn("publish failed event failed", zap.Error(pubErr))
	}
}
