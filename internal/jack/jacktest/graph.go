// Package jacktest provides an in-memory audio graph for tests.
package jacktest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/diogoX451/jackson/internal/core/ports"
	"github.com/diogoX451/jackson/internal/jack"
)

// Graph is a ports.AudioGraph backed by maps. Connections are stored in
// both directions, as JACK reports them.
type Graph struct {
	mu sync.Mutex

	ports    map[string]ports.PortFlags
	conns    map[string]map[string]struct{}
	callback ports.RegistrationFunc

	activated   bool
	activateErr error
	sampleRate  int
	bufferSize  int

	connectCalls   int
	failConnects   int
	failErr        error
	deactivateCall int
}

var _ ports.AudioGraph = (*Graph)(nil)

// ErrTransient is what failing connects return by default.
var ErrTransient = errors.New("cannot connect ports owned by inactive clients")

func New() *Graph {
	return &Graph{
		ports:      make(map[string]ports.PortFlags),
		conns:      make(map[string]map[string]struct{}),
		sampleRate: 48000,
		bufferSize: 256,
	}
}

// NewSystem returns a graph with physical capture and playback ports.
func NewSystem(captures, playbacks int) *Graph {
	g := New()
	for i := 1; i <= captures; i++ {
		g.AddPort(fmt.Sprintf("system:capture_%d", i), ports.PortIsOutput|ports.PortIsPhysical)
	}
	for i := 1; i <= playbacks; i++ {
		g.AddPort(fmt.Sprintf("system:playback_%d", i), ports.PortIsInput|ports.PortIsPhysical)
	}
	return g
}

// AddPort adds a port without firing the registration callback.
func (g *Graph) AddPort(name string, flags ports.PortFlags) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ports[name] = flags
}

// RegisterPort adds a port and fires the callback like a newly started
// client would.
func (g *Graph) RegisterPort(name string, flags ports.PortFlags) {
	g.mu.Lock()
	g.ports[name] = flags
	fn, active := g.callback, g.activated
	g.mu.Unlock()

	if fn != nil && active {
		fn(name, true)
	}
}

func (g *Graph) UnregisterPort(name string) {
	g.mu.Lock()
	delete(g.ports, name)
	for other := range g.conns[name] {
		delete(g.conns[other], name)
	}
	delete(g.conns, name)
	fn, active := g.callback, g.activated
	g.mu.Unlock()

	if fn != nil && active {
		fn(name, false)
	}
}

// Link connects two ports directly, bypassing the counters.
func (g *Graph) Link(source, destination string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.link(source, destination)
}

func (g *Graph) link(a, b string) {
	if g.conns[a] == nil {
		g.conns[a] = make(map[string]struct{})
	}
	if g.conns[b] == nil {
		g.conns[b] = make(map[string]struct{})
	}
	g.conns[a][b] = struct{}{}
	g.conns[b][a] = struct{}{}
}

func (g *Graph) Connected(source, destination string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.conns[source][destination]
	return ok
}

// FailConnects makes the next n Connect calls fail with err
// (ErrTransient when nil). n < 0 fails forever.
func (g *Graph) FailConnects(n int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		err = ErrTransient
	}
	g.failConnects, g.failErr = n, err
}

func (g *Graph) SetActivateError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.activateErr = err
}

func (g *Graph) ConnectCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectCalls
}

func (g *Graph) DeactivateCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deactivateCall
}

func (g *Graph) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activated
}

func (g *Graph) Activate(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.activateErr != nil {
		return &jack.GraphError{Op: "activate", Err: g.activateErr}
	}
	g.activated = true
	return nil
}

func (g *Graph) Deactivate() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deactivateCall++
	g.activated = false
	return nil
}

func (g *Graph) Close() error { return nil }

func (g *Graph) PortExists(name string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.ports[name]
	return ok, nil
}

func (g *Graph) Connections(name string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.ports[name]; !ok {
		return nil, &jack.GraphError{Op: "get_port_by_name", Err: fmt.Errorf("port %s not found", name)}
	}
	result := make([]string, 0, len(g.conns[name]))
	for other := range g.conns[name] {
		result = append(result, other)
	}
	sort.Strings(result)
	return result, nil
}

func (g *Graph) Connect(source, destination string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connectCalls++

	if g.failConnects != 0 {
		if g.failConnects > 0 {
			g.failConnects--
		}
		return &jack.GraphError{Op: "connect", Err: g.failErr}
	}
	if _, ok := g.ports[source]; !ok {
		return &jack.GraphError{Op: "connect", Err: fmt.Errorf("unknown source port %s", source)}
	}
	if _, ok := g.ports[destination]; !ok {
		return &jack.GraphError{Op: "connect", Err: fmt.Errorf("unknown destination port %s", destination)}
	}
	if _, ok := g.conns[source][destination]; ok {
		return &jack.GraphError{Op: "connect", Err: errors.New("already connected")}
	}
	g.link(source, destination)
	return nil
}

func (g *Graph) Ports(flags ports.PortFlags) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var names []string
	for name, f := range g.ports {
		if f&flags == flags {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (g *Graph) SampleRate() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sampleRate, nil
}

func (g *Graph) BufferSize() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bufferSize, nil
}

func (g *Graph) SetEngine(sampleRate, bufferSize int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sampleRate, g.bufferSize = sampleRate, bufferSize
}

func (g *Graph) SetPortRegistrationCallback(fn ports.RegistrationFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callback = fn
	return nil
}
