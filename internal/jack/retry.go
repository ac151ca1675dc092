package jack

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/diogoX451/jackson/internal/core/domain"
)

const (
	DefaultRetryInterval = 100 * time.Millisecond

	// BringUpAttempts is for the client side, where the bridge process is
	// started concurrently with wiring.
	BringUpAttempts = 100
	// SteadyAttempts is for the server side, which should fail fast.
	SteadyAttempts = 20
)

type RetryPolicy struct {
	Attempts int
	Interval time.Duration
	Clock    clock.Clock
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = SteadyAttempts
	}
	if p.Interval <= 0 {
		p.Interval = DefaultRetryInterval
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	return p
}

func (p RetryPolicy) sleep(ctx context.Context) error {
	timer := p.Clock.Timer(p.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryExhaustedError is returned when every attempt failed transiently.
type RetryExhaustedError struct {
	Source      domain.PortName
	Destination domain.PortName
	Attempts    int
	Last        error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("connect %s -> %s: gave up after %d attempts: %v",
		e.Source, e.Destination, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// RetryConnect connects source to destination, absorbing the transient
// failures of a graph that is still coming up. Already connected ports are
// a success without a native connect.
func RetryConnect(ctx context.Context, c *Client, source, destination domain.PortName, policy RetryPolicy) error {
	policy = policy.withDefaults()

	var last error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := c.EnsureConnected(source, destination)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		last = err
		c.log.Debug("connect failed, retrying",
			zap.Stringer("source", source),
			zap.Stringer("destination", destination),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == policy.Attempts {
			break
		}
		if err := policy.sleep(ctx); err != nil {
			return err
		}
	}

	return &RetryExhaustedError{
		Source:      source,
		Destination: destination,
		Attempts:    policy.Attempts,
		Last:        last,
	}
}
