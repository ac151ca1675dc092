package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogoX451/jackson/internal/core/domain"
	"github.com/diogoX451/jackson/internal/core/ports"
	"github.com/diogoX451/jackson/internal/core/service"
	"github.com/diogoX451/jackson/internal/jack"
	"github.com/diogoX451/jackson/internal/jack/jacktest"
)

const (
	bridgeSend1    = "JackTrip:send_1"
	bridgeReceive1 = "JackTrip:receive_1"
)

type coordinatorFixture struct {
	local  *jacktest.Graph
	server *jacktest.Graph
	remote *countingRemote
	events *recordingEvents
	conns  *domain.ConnectionMap
	coord  *service.Coordinator
}

// newFixture wires client alice sending capture_1 to the server's
// playback_2 and receiving the server's capture_1 on playback_1.
func newFixture(t *testing.T, opts ...service.CoordinatorOption) *coordinatorFixture {
	t.Helper()

	conns, err := domain.BuildConnectionMap(domain.BuildOptions{
		ClientName:  "alice",
		Send:        domain.ChannelIntent{{From: 1, To: 2}},
		Receive:     domain.ChannelIntent{{From: 1, To: 1}},
		InputLimit:  2,
		OutputLimit: 2,
	})
	require.NoError(t, err)

	f := &coordinatorFixture{
		local:  jacktest.NewSystem(2, 2),
		server: serverGraph(),
		events: &recordingEvents{},
		conns:  conns,
	}
	f.remote = &countingRemote{inner: newConnector(f.server)}
	opts = append([]service.CoordinatorOption{
		service.WithCoordinatorRetry(fastRetry(50)),
		service.WithCoordinatorEvents(f.events),
		service.WithSessionID("s1"),
	}, opts...)
	f.coord = service.NewCoordinator(jack.NewClient("alice", f.local, nil), f.remote, conns, nil, opts...)
	return f
}

func (f *coordinatorFixture) start(t *testing.T) (cancel func(), done <-chan error) {
	t.Helper()

	ctx, cancelFn := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.coord.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.coord.State() == service.StateActivated
	}, time.Second, time.Millisecond)
	return cancelFn, errCh
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop")
		return nil
	}
}

func TestCoordinatorWiresRegisteredPorts(t *testing.T) {
	f := newFixture(t)
	cancel, done := f.start(t)

	f.local.RegisterPort(bridgeSend1, ports.PortIsInput)
	f.local.RegisterPort(bridgeReceive1, ports.PortIsOutput)
	f.local.RegisterPort("JackTrip:send_9", ports.PortIsInput)
	f.local.RegisterPort("pulse:monitor", ports.PortIsOutput)

	require.Eventually(t, func() bool { return f.coord.Wired() == 2 }, 2*time.Second, time.Millisecond)

	assert.True(t, f.server.Connected("alice:receive_1", "system:playback_2"))
	assert.True(t, f.server.Connected("system:capture_1", "alice:send_1"))
	assert.True(t, f.local.Connected("system:capture_1", bridgeSend1))
	assert.True(t, f.local.Connected(bridgeReceive1, "system:playback_1"))
	assert.Equal(t, 2, f.remote.Calls())

	connected, failed := f.events.counts()
	assert.Equal(t, 2, connected)
	assert.Equal(t, 0, failed)

	cancel()
	require.NoError(t, wait(t, done))
	assert.Equal(t, service.StateStopped, f.coord.State())
	assert.Equal(t, 1, f.local.DeactivateCalls())
}

func TestCoordinatorPicksUpPortsRegisteredBeforeActivation(t *testing.T) {
	f := newFixture(t)
	f.local.AddPort(bridgeSend1, ports.PortIsInput)

	cancel, done := f.start(t)
	require.Eventually(t, func() bool { return f.coord.Wired() == 1 }, 2*time.Second, time.Millisecond)
	assert.True(t, f.local.Connected("system:capture_1", bridgeSend1))

	cancel()
	require.NoError(t, wait(t, done))
}

func TestCoordinatorRemoteBeforeLocal(t *testing.T) {
	f := newFixture(t)
	f.remote.before = func([]domain.ConnectRequest) {
		assert.False(t, f.local.Connected("system:capture_1", bridgeSend1),
			"local pair wired before the remote call")
	}
	cancel, done := f.start(t)

	f.local.RegisterPort(bridgeSend1, ports.PortIsInput)
	require.Eventually(t, func() bool { return f.coord.Wired() == 1 }, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, wait(t, done))
}

func TestCoordinatorRemoteFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.server.Link("system:capture_2", "system:playback_2")
	_, done := f.start(t)

	f.local.RegisterPort(bridgeSend1, ports.PortIsInput)
	err := wait(t, done)

	var exclusive *domain.PlaybackPortAlreadyHasConnectionsError
	require.True(t, errors.As(err, &exclusive))
	assert.Equal(t, []string{"system:capture_2"}, exclusive.ExistingConnections)
	assert.False(t, f.local.Connected("system:capture_1", bridgeSend1))
	assert.Equal(t, 0, f.local.ConnectCalls())
	assert.Equal(t, service.StateStopped, f.coord.State())
	assert.Equal(t, 1, f.local.DeactivateCalls())

	_, failed := f.events.counts()
	assert.Equal(t, 1, failed)
}

func TestCoordinatorIgnoresUnregistration(t *testing.T) {
	f := newFixture(t)
	f.local.AddPort(bridgeReceive1, ports.PortIsOutput)
	f.local.AddPort(bridgeSend1, ports.PortIsInput)
	cancel, done := f.start(t)
	require.Eventually(t, func() bool { return f.coord.Wired() == 2 }, 2*time.Second, time.Millisecond)
	calls := f.remote.Calls()

	f.local.UnregisterPort(bridgeSend1)
	assert.Never(t, func() bool { return f.remote.Calls() != calls }, 50*time.Millisecond, 5*time.Millisecond)

	cancel()
	require.NoError(t, wait(t, done))
}

func TestCoordinatorWireIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.local.AddPort(bridgeSend1, ports.PortIsInput)
	conn, ok := f.conns.Get(domain.MustParsePortName(bridgeSend1))
	require.True(t, ok)

	ctx := context.Background()
	require.NoError(t, f.coord.Wire(ctx, conn))
	require.NoError(t, f.coord.Wire(ctx, conn))

	assert.Equal(t, 1, f.local.ConnectCalls())
	assert.Equal(t, 1, f.server.ConnectCalls())
	assert.Equal(t, 1, f.coord.Wired())
}

func TestCoordinatorConcurrentWireSharesOneTask(t *testing.T) {
	f := newFixture(t)
	f.local.AddPort(bridgeSend1, ports.PortIsInput)
	f.remote.before = func([]domain.ConnectRequest) { time.Sleep(50 * time.Millisecond) }
	conn, ok := f.conns.Get(domain.MustParsePortName(bridgeSend1))
	require.True(t, ok)

	const callers = 5
	start := make(chan struct{})
	errs := make(chan error, callers)
	for range callers {
		go func() {
			<-start
			errs <- f.coord.Wire(context.Background(), conn)
		}()
	}
	close(start)
	for range callers {
		require.NoError(t, <-errs)
	}

	assert.Equal(t, 1, f.remote.Calls())
	assert.Equal(t, 1, f.server.ConnectCalls())
	assert.Equal(t, 1, f.local.ConnectCalls())
	assert.Equal(t, 1, f.coord.Wired())
}

func TestCoordinatorRescansAfterDroppedRegistration(t *testing.T) {
	f := newFixture(t, service.WithQueueSize(1))
	// Both ports are queued by the activation scan before the queue is
	// drained, so the second one is dropped.
	f.local.AddPort(bridgeSend1, ports.PortIsInput)
	f.local.AddPort(bridgeReceive1, ports.PortIsOutput)

	cancel, done := f.start(t)
	require.Eventually(t, func() bool { return f.coord.Wired() == 2 }, 2*time.Second, time.Millisecond)
	assert.True(t, f.local.Connected("system:capture_1", bridgeSend1))
	assert.True(t, f.local.Connected(bridgeReceive1, "system:playback_1"))

	cancel()
	require.NoError(t, wait(t, done))
}

func TestCoordinatorShutdown(t *testing.T) {
	t.Run("failed activation skips deactivate", func(t *testing.T) {
		f := newFixture(t)
		f.local.SetActivateError(errors.New("no server"))

		err := f.coord.Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, 0, f.local.DeactivateCalls())
		assert.Equal(t, service.StateStopped, f.coord.State())
	})

	t.Run("runs once", func(t *testing.T) {
		f := newFixture(t)
		cancel, done := f.start(t)

		assert.Error(t, f.coord.Run(context.Background()))

		cancel()
		require.NoError(t, wait(t, done))
	})

	t.Run("cancelled wiring task stops cleanly", func(t *testing.T) {
		f := newFixture(t, service.WithCoordinatorRetry(fastRetry(1_000_000)))
		f.local.FailConnects(-1, nil)
		cancel, done := f.start(t)

		f.local.RegisterPort(bridgeSend1, ports.PortIsInput)
		require.Eventually(t, func() bool { return f.local.ConnectCalls() > 0 }, time.Second, time.Millisecond)

		cancel()
		require.NoError(t, wait(t, done))
		assert.Equal(t, 1, f.local.DeactivateCalls())
	})
}
