// Package jack wraps the native audio graph with the guards the
// coordination layer relies on: serialized native calls, an activation
// guard and connection logging.
package jack

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/diogoX451/jackson/internal/core/domain"
	"github.com/diogoX451/jackson/internal/core/ports"
)

// GraphError is a native graph failure. All of them are treated as
// transient by RetryConnect: the usual causes are a peer client that is
// not active yet or a port that is not registered yet.
type GraphError struct {
	Op  string
	Err error
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("jack %s: %v", e.Op, e.Err)
}

func (e *GraphError) Unwrap() error { return e.Err }

// IsTransient reports whether err may go away by retrying.
func IsTransient(err error) bool {
	var graphErr *GraphError
	return errors.As(err, &graphErr)
}

// Client owns one native graph handle. All native calls go through mu.
type Client struct {
	name  string
	graph ports.AudioGraph
	log   *zap.Logger

	mu        sync.Mutex
	activated bool
}

func NewClient(name string, graph ports.AudioGraph, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		name:  name,
		graph: graph,
		log:   log.With(zap.String("jack_client", name)),
	}
}

func (c *Client) Name() string { return c.name }

// WaitReady polls the graph until it answers, for servers that are still
// starting up.
func (c *Client) WaitReady(ctx context.Context, policy RetryPolicy) error {
	policy = policy.withDefaults()

	var last error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		c.mu.Lock()
		_, err := c.graph.Ports(0)
		c.mu.Unlock()
		if err == nil {
			c.log.Debug("connected to jack", zap.Int("attempt", attempt))
			return nil
		}
		last = err
		if err := policy.sleep(ctx); err != nil {
			return err
		}
	}
	return fmt.Errorf("can't connect to jack after %d attempts: %w", policy.Attempts, last)
}

// SetPortRegistrationCallback must be called before Activate.
func (c *Client) SetPortRegistrationCallback(fn ports.RegistrationFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.SetPortRegistrationCallback(fn)
}

func (c *Client) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activated {
		return nil
	}
	if err := c.graph.Activate(ctx); err != nil {
		return fmt.Errorf("activate %s: %w", c.name, err)
	}
	c.activated = true
	c.log.Debug("client activated")
	return nil
}

func (c *Client) Activated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activated
}

// Deactivate is a no-op on a client that was never activated; the native
// call is undefined in that state.
func (c *Client) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.activated {
		return nil
	}
	c.activated = false
	if err := c.graph.Deactivate(); err != nil {
		return fmt.Errorf("deactivate %s: %w", c.name, err)
	}
	c.log.Debug("client deactivated")
	return nil
}

func (c *Client) Close() error {
	err := c.Deactivate()

	c.mu.Lock()
	defer c.mu.Unlock()
	return multierr.Append(err, c.graph.Close())
}

func (c *Client) PortExists(name domain.PortName) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.PortExists(name.String())
}

func (c *Client) Connections(name domain.PortName) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.Connections(name.String())
}

// EnsureConnected connects source to destination unless they already are.
// It reports whether a native connect was issued.
func (c *Client) EnsureConnected(source, destination domain.PortName) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.graph.Connections(source.String())
	if err != nil {
		return false, err
	}
	dst := destination.String()
	for _, name := range existing {
		if name == dst {
			return false, nil
		}
	}

	if err := c.graph.Connect(source.String(), dst); err != nil {
		return false, err
	}
	c.log.Info("connected ports",
		zap.Stringer("source", source),
		zap.Stringer("destination", destination))
	return true, nil
}

func (c *Client) Ports(flags ports.PortFlags) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.Ports(flags)
}

func (c *Client) SampleRate() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.SampleRate()
}

func (c *Client) BufferSize() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.BufferSize()
}
