package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/diogoX451/jackson/internal/core/domain"
	"github.com/diogoX451/jackson/internal/core/ports"
	"github.com/diogoX451/jackson/internal/jack"
	"github.com/diogoX451/jackson/internal/metrics"
)

const machineClient = "client"

type State int32

const (
	StateIdle State = iota
	StateActivated
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActivated:
		return "activated"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Coordinator wires every entry of a connection map as the bridge ports
// register in the local graph. Remote wiring always precedes local wiring.
type Coordinator struct {
	client  *jack.Client
	remote  ports.Connector
	conns   *domain.ConnectionMap
	policy  jack.RetryPolicy
	events  ports.WiringEvents
	metrics *metrics.Metrics
	session string
	log     *zap.Logger

	registrations chan domain.PortName
	rescan        chan struct{}
	flight        singleflight.Group
	state         atomic.Int32
	started       atomic.Bool

	mu    sync.Mutex
	wired map[domain.PortName]struct{}
}

type CoordinatorOption func(*Coordinator)

func WithCoordinatorRetry(policy jack.RetryPolicy) CoordinatorOption {
	return func(c *Coordinator) { c.policy = policy }
}

func WithCoordinatorEvents(ev ports.WiringEvents) CoordinatorOption {
	return func(c *Coordinator) { c.events = ev }
}

func WithCoordinatorMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

func WithSessionID(id string) CoordinatorOption {
	return func(c *Coordinator) { c.session = id }
}

// WithQueueSize bounds the registration queue.
func WithQueueSize(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.registrations = make(chan domain.PortName, n)
		}
	}
}

func NewCoordinator(client *jack.Client, remote ports.Connector, conns *domain.ConnectionMap, log *zap.Logger, opts ...CoordinatorOption) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		client:        client,
		remote:        remote,
		conns:         conns,
		policy:        jack.RetryPolicy{Attempts: jack.BringUpAttempts, Interval: jack.DefaultRetryInterval},
		log:           log,
		registrations: make(chan domain.PortName, max(4*conns.Len(), 16)),
		rescan:        make(chan struct{}, 1),
		wired:         make(map[domain.PortName]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Run activates the local client and wires bridge ports until ctx is
// cancelled or a wiring task fails. Deactivation always runs before Run
// returns. Cancellation of ctx is a clean stop and returns nil.
func (c *Coordinator) Run(ctx context.Context) (err error) {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("coordinator already started")
	}
	defer func() {
		err = multierr.Append(err, c.shutdown())
	}()

	if err := c.client.SetPortRegistrationCallback(c.onRegistration); err != nil {
		return fmt.Errorf("install registration callback: %w", err)
	}
	if err := c.client.Activate(ctx); err != nil {
		return err
	}
	c.state.Store(int32(StateActivated))
	c.log.Info("waiting for bridge ports", zap.Int("connections", c.conns.Len()))

	// Bridge ports that registered before activation produce no callback.
	existing, err := c.client.Ports(0)
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	for _, name := range existing {
		c.onRegistration(name, true)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case name := <-c.registrations:
				conn, ok := c.conns.Get(name)
				if !ok {
					continue
				}
				g.Go(func() error { return c.Wire(gctx, conn) })
			case <-c.rescan:
				if err := c.wirePending(gctx, g); err != nil {
					return err
				}
			}
		}
	})

	err = g.Wait()
	if ctx.Err() != nil && (err == nil || errors.Is(err, ctx.Err())) {
		return nil
	}
	return err
}

// onRegistration runs on the graph's callback context and only enqueues.
func (c *Coordinator) onRegistration(name string, registered bool) {
	if !registered {
		c.log.Debug("port unregistered", zap.String("port", name))
		return
	}
	port, err := domain.ParsePortName(name)
	if err != nil {
		return
	}
	if _, ok := c.conns.Get(port); !ok {
		return
	}

	select {
	case c.registrations <- port:
		c.metrics.Registration("queued")
	default:
		c.metrics.Registration("dropped")
		c.log.Warn("registration queue full, rescanning ports", zap.Stringer("port", port))
		select {
		case c.rescan <- struct{}{}:
		default:
		}
	}
}

// wirePending starts a wiring task for every registered bridge port that
// is not wired yet. Ports already in flight join their running task.
func (c *Coordinator) wirePending(ctx context.Context, g *errgroup.Group) error {
	names, err := c.client.Ports(0)
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	for _, name := range names {
		port, err := domain.ParsePortName(name)
		if err != nil || c.isWired(port) {
			continue
		}
		conn, ok := c.conns.Get(port)
		if !ok {
			continue
		}
		g.Go(func() error { return c.Wire(ctx, conn) })
	}
	return nil
}

// Wire runs the wiring task for one connection. Concurrent calls for the
// same local bridge port share a single execution.
func (c *Coordinator) Wire(ctx context.Context, conn domain.PortConnection) error {
	_, err, _ := c.flight.Do(conn.LocalBridge.String(), func() (any, error) {
		return nil, c.wire(ctx, conn)
	})
	return err
}

func (c *Coordinator) wire(ctx context.Context, conn domain.PortConnection) error {
	log := c.log.With(
		zap.String("role", string(conn.Role)),
		zap.Stringer("local_bridge", conn.LocalBridge))

	remote := conn.RemoteRequest()
	if err := c.remote.Connect(ctx, []domain.ConnectRequest{remote}); err != nil {
		c.failed(ctx, conn, remote.Source, remote.Destination, err)
		return fmt.Errorf("remote wiring %s -> %s: %w", remote.Source, remote.Destination, err)
	}

	local := conn.LocalPair()
	if err := jack.RetryConnect(ctx, c.client, local.Source, local.Destination, c.policy); err != nil {
		c.failed(ctx, conn, local.Source, local.Destination, err)
		return fmt.Errorf("local wiring %s: %w", local, err)
	}

	c.metrics.WiringTask(string(conn.Role), metrics.ResultOK)
	c.publish(ctx, conn, local.Source, local.Destination, nil)
	log.Info("channel wired",
		zap.Stringer("source", conn.Source),
		zap.Stringer("destination", conn.Destination))

	if c.markWired(conn.LocalBridge) {
		c.log.Info("all channels wired", zap.Int("connections", c.conns.Len()))
	}
	return nil
}

// markWired reports whether key completed the map.
func (c *Coordinator) markWired(key domain.PortName) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.wired[key]; ok {
		return false
	}
	c.wired[key] = struct{}{}
	return len(c.wired) == c.conns.Len()
}

func (c *Coordinator) isWired(key domain.PortName) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.wired[key]
	return ok
}

// Wired returns the local bridge ports wired so far.
func (c *Coordinator) Wired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.wired)
}

func (c *Coordinator) failed(ctx context.Context, conn domain.PortConnection, source, destination domain.PortName, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	c.metrics.WiringTask(string(conn.Role), metrics.ResultFailed)
	c.publish(ctx, conn, source, destination, err)
}

func (c *Coordinator) publish(ctx context.Context, conn domain.PortConnection, source, destination domain.PortName, cause error) {
	if c.events == nil {
		return
	}
	ev := ports.WiringEvent{
		Session:     c.session,
		Machine:     machineClient,
		Role:        conn.Role,
		Source:      source,
		Destination: destination,
		At:          time.Now(),
	}
	ctx = context.WithoutCancel(ctx)

	var err error
	if cause == nil {
		err = c.events.Connected(ctx, ev)
	} else {
		ev.Error = cause.Error()
		var connectErr domain.ConnectError
		if errors.As(cause, &connectErr) {
			ev.ErrorKind = connectErr.Kind()
		}
		err = c.events.Failed(ctx, ev)
	}
	if err != nil {
		c.log.Warn("publish wiring event failed", zap.Error(err))
	}
}

// shutdown deactivates the local client. Deactivation takes no context
// and cannot be interrupted; an inactive client is left alone.
func (c *Coordinator) shutdown() error {
	c.state.Store(int32(StateDraining))
	defer c.state.Store(int32(StateStopped))

	if err := c.client.Deactivate(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
