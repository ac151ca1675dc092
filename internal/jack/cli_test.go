package jack

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogoX451/jackson/internal/core/ports"
)

const lspOutput = `system:capture_1
   JackTrip:send_1
	properties: output,physical,terminal,
system:capture_2
	properties: output,physical,terminal,
system:playback_1
   JackTrip:receive_1
	properties: input,physical,terminal,
JackTrip:send_1
   system:capture_1
	properties: input,
JackTrip:receive_1
   system:playback_1
	properties: output,
`

// fakeTools answers jack_lsp from a mutable listing and records connects.
type fakeTools struct {
	mu       sync.Mutex
	lsp      string
	connects [][]string
	fail     error
}

func (f *fakeTools) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail != nil {
		return nil, f.fail
	}
	switch name {
	case "jack_lsp":
		return []byte(f.lsp), nil
	case "jack_connect":
		f.connects = append(f.connects, args)
		return nil, nil
	case "jack_samplerate":
		return []byte("48000\n"), nil
	case "jack_bufsize":
		return []byte("buffer size = 256\n"), nil
	}
	return nil, errors.New("unknown tool " + name)
}

func (f *fakeTools) set(lsp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lsp = lsp
}

func TestParseLsp(t *testing.T) {
	snap := parseLsp([]byte(lspOutput))
	require.Len(t, snap, 5)

	assert.Equal(t, []string{"JackTrip:send_1"}, snap["system:capture_1"].connections)
	assert.Empty(t, snap["system:capture_2"].connections)
	assert.Equal(t, ports.PortIsOutput|ports.PortIsPhysical, snap["system:capture_1"].flags)
	assert.Equal(t, ports.PortIsInput|ports.PortIsPhysical, snap["system:playback_1"].flags)
	assert.Equal(t, ports.PortIsInput, snap["JackTrip:send_1"].flags)
}

func TestCLIGraph(t *testing.T) {
	tools := &fakeTools{lsp: lspOutput}
	g := NewCLIGraph("test", nil, WithRunner(tools.run))

	physicalInputs, err := g.Ports(ports.PortIsInput | ports.PortIsPhysical)
	require.NoError(t, err)
	assert.Equal(t, []string{"system:playback_1"}, physicalInputs)

	outputs, err := g.Ports(ports.PortIsOutput | ports.PortIsPhysical)
	require.NoError(t, err)
	sort.Strings(outputs)
	assert.Equal(t, []string{"system:capture_1", "system:capture_2"}, outputs)

	ok, err := g.PortExists("JackTrip:receive_1")
	require.NoError(t, err)
	assert.True(t, ok)

	conns, err := g.Connections("system:playback_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"JackTrip:receive_1"}, conns)

	_, err = g.Connections("JackTrip:send_9")
	assert.True(t, IsTransient(err))

	require.NoError(t, g.Connect("system:capture_2", "JackTrip:send_1"))
	assert.Equal(t, [][]string{{"system:capture_2", "JackTrip:send_1"}}, tools.connects)

	rate, err := g.SampleRate()
	require.NoError(t, err)
	assert.Equal(t, 48000, rate)

	size, err := g.BufferSize()
	require.NoError(t, err)
	assert.Equal(t, 256, size)

	tools.fail = errors.New("jack server is not running")
	_, err = g.Ports(0)
	assert.True(t, IsTransient(err))
}

func TestCLIGraphRegistration(t *testing.T) {
	tools := &fakeTools{lsp: "system:capture_1\n"}
	g := NewCLIGraph("test", nil, WithRunner(tools.run), WithPollInterval(time.Millisecond))

	type event struct {
		name       string
		registered bool
	}
	events := make(chan event, 16)
	require.NoError(t, g.SetPortRegistrationCallback(func(name string, registered bool) {
		events <- event{name, registered}
	}))
	require.NoError(t, g.Activate(context.Background()))
	defer g.Close()

	assert.Error(t, g.SetPortRegistrationCallback(nil))

	tools.set(strings.Join([]string{"system:capture_1", "JackTrip:send_1", ""}, "\n"))
	select {
	case ev := <-events:
		assert.Equal(t, event{"JackTrip:send_1", true}, ev)
	case <-time.After(time.Second):
		t.Fatal("registration not reported")
	}

	tools.set("system:capture_1\n")
	select {
	case ev := <-events:
		assert.Equal(t, event{"JackTrip:send_1", false}, ev)
	case <-time.After(time.Second):
		t.Fatal("unregistration not reported")
	}

	require.NoError(t, g.Deactivate())
	require.NoError(t, g.Deactivate())
}
