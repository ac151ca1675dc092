package jack_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogoX451/jackson/internal/core/domain"
	"github.com/diogoX451/jackson/internal/core/ports"
	"github.com/diogoX451/jackson/internal/jack"
	"github.com/diogoX451/jackson/internal/jack/jacktest"
)

var (
	capture1 = domain.Capture(1)
	bridge1  = domain.MustParsePortName("JackTrip:send_1")
)

func fastPolicy(attempts int) jack.RetryPolicy {
	return jack.RetryPolicy{Attempts: attempts, Interval: time.Millisecond}
}

func TestRetryConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("connects", func(t *testing.T) {
		graph := jacktest.NewSystem(2, 2)
		graph.AddPort(bridge1.String(), ports.PortIsInput)
		client := jack.NewClient("test", graph, nil)

		require.NoError(t, jack.RetryConnect(ctx, client, capture1, bridge1, fastPolicy(3)))
		assert.True(t, graph.Connected(capture1.String(), bridge1.String()))
		assert.Equal(t, 1, graph.ConnectCalls())
	})

	t.Run("already connected is a no-op", func(t *testing.T) {
		graph := jacktest.NewSystem(2, 2)
		graph.AddPort(bridge1.String(), ports.PortIsInput)
		graph.Link(capture1.String(), bridge1.String())
		client := jack.NewClient("test", graph, nil)

		require.NoError(t, jack.RetryConnect(ctx, client, capture1, bridge1, fastPolicy(3)))
		require.NoError(t, jack.RetryConnect(ctx, client, capture1, bridge1, fastPolicy(3)))
		assert.Equal(t, 0, graph.ConnectCalls())
	})

	t.Run("absorbs transient failures", func(t *testing.T) {
		graph := jacktest.NewSystem(2, 2)
		graph.AddPort(bridge1.String(), ports.PortIsInput)
		graph.FailConnects(4, nil)
		client := jack.NewClient("test", graph, nil)

		require.NoError(t, jack.RetryConnect(ctx, client, capture1, bridge1, fastPolicy(10)))
		assert.Equal(t, 5, graph.ConnectCalls())
	})

	t.Run("waits for a port to register", func(t *testing.T) {
		graph := jacktest.NewSystem(2, 2)
		client := jack.NewClient("test", graph, nil)

		go func() {
			time.Sleep(5 * time.Millisecond)
			graph.AddPort(bridge1.String(), ports.PortIsInput)
		}()

		require.NoError(t, jack.RetryConnect(ctx, client, capture1, bridge1, fastPolicy(1000)))
		assert.True(t, graph.Connected(capture1.String(), bridge1.String()))
	})

	t.Run("exhausts the attempt budget", func(t *testing.T) {
		graph := jacktest.NewSystem(2, 2)
		graph.AddPort(bridge1.String(), ports.PortIsInput)
		graph.FailConnects(-1, nil)
		client := jack.NewClient("test", graph, nil)

		err := jack.RetryConnect(ctx, client, capture1, bridge1, fastPolicy(7))

		var exhausted *jack.RetryExhaustedError
		require.True(t, errors.As(err, &exhausted))
		assert.Equal(t, 7, exhausted.Attempts)
		assert.Equal(t, capture1, exhausted.Source)
		assert.ErrorIs(t, err, jacktest.ErrTransient)
		assert.Equal(t, 7, graph.ConnectCalls())
		assert.False(t, graph.Connected(capture1.String(), bridge1.String()))
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		graph := jacktest.NewSystem(2, 2)
		graph.AddPort(bridge1.String(), ports.PortIsInput)
		graph.FailConnects(-1, nil)
		client := jack.NewClient("test", graph, nil)

		ctx, cancel := context.WithCancel(ctx)
		cancel()

		err := jack.RetryConnect(ctx, client, capture1, bridge1, fastPolicy(100))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, graph.ConnectCalls())
	})
}

func TestClientActivation(t *testing.T) {
	ctx := context.Background()

	t.Run("deactivate skipped when never activated", func(t *testing.T) {
		graph := jacktest.New()
		client := jack.NewClient("test", graph, nil)

		require.NoError(t, client.Deactivate())
		require.NoError(t, client.Close())
		assert.Equal(t, 0, graph.DeactivateCalls())
	})

	t.Run("failed activation leaves client inactive", func(t *testing.T) {
		graph := jacktest.New()
		graph.SetActivateError(errors.New("server gone"))
		client := jack.NewClient("test", graph, nil)

		require.Error(t, client.Activate(ctx))
		assert.False(t, client.Activated())
		require.NoError(t, client.Deactivate())
		assert.Equal(t, 0, graph.DeactivateCalls())
	})

	t.Run("deactivates once", func(t *testing.T) {
		graph := jacktest.New()
		client := jack.NewClient("test", graph, nil)

		require.NoError(t, client.Activate(ctx))
		require.NoError(t, client.Activate(ctx))
		assert.True(t, graph.Active())

		require.NoError(t, client.Deactivate())
		require.NoError(t, client.Close())
		assert.Equal(t, 1, graph.DeactivateCalls())
		assert.False(t, graph.Active())
	})
}

func TestWaitReady(t *testing.T) {
	client := jack.NewClient("test", jacktest.New(), nil)
	require.NoError(t, client.WaitReady(context.Background(), fastPolicy(2)))
}
