package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogoX451/jackson/internal/core/domain"
	"github.com/diogoX451/jackson/internal/core/ports"
	"github.com/diogoX451/jackson/internal/events"
	"github.com/diogoX451/jackson/internal/events/eventstest"
)

func TestWiringPublisher(t *testing.T) {
	ctx := context.Background()
	bus := eventstest.New()
	pub := NewWiringPublisher(bus)

	type received struct {
		subject string
		ev      ports.WiringEvent
	}
	var got []received
	sub, err := SubscribeWiring(bus, func(_ context.Context, subject string, ev ports.WiringEvent) error {
		got = append(got, received{subject, ev})
		return nil
	})
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ok := ports.WiringEvent{
		Session:     "s1",
		Machine:     "server",
		Role:        domain.RoleSend,
		Source:      domain.MustParsePortName("alice:receive_1"),
		Destination: domain.Playback(2),
		At:          at,
	}
	require.NoError(t, pub.Connected(ctx, ok))

	bad := ok
	bad.ErrorKind = domain.KindPortNotFound
	bad.Error = "destination port not found: system:playback_2"
	require.NoError(t, pub.Failed(ctx, bad))

	require.Len(t, got, 2)
	assert.Equal(t, events.SubjectConnected, got[0].subject)
	assert.Equal(t, ok, got[0].ev)
	assert.Equal(t, events.SubjectFailed, got[1].subject)
	assert.Equal(t, domain.KindPortNotFound, got[1].ev.ErrorKind)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, pub.Connected(ctx, ok))
	assert.Len(t, got, 2)

	require.NoError(t, pub.Close())
	assert.Error(t, pub.Connected(ctx, ok))
}

func TestSubscribeWiringDropsGarbage(t *testing.T) {
	bus := eventstest.New()
	called := false
	_, err := SubscribeWiring(bus, func(context.Context, string, ports.WiringEvent) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), events.SubjectFailed, []byte("{not json")))
	assert.False(t, called)
}
