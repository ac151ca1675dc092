package ports

import "context"

// PortFlags selects ports by their JACK properties.
type PortFlags uint8

const (
	// PortIsInput: the port accepts audio (playback sinks, bridge sends).
	PortIsInput PortFlags = 1 << iota
	// PortIsOutput: the port produces audio (capture sources, bridge receives).
	PortIsOutput
	PortIsPhysical
)

// RegistrationFunc is called from the graph's own context whenever a port
// appears or disappears. It must not block.
type RegistrationFunc func(name string, registered bool)

// AudioGraph is the native audio engine boundary. Implementations are not
// required to be safe for concurrent calls.
type AudioGraph interface {
	Activate(ctx context.Context) error
	Deactivate() error
	Close() error

	// PortExists is get_port_by_name.
	PortExists(name string) (bool, error)
	// Connections lists the ports connected to name.
	Connections(name string) ([]string, error)
	Connect(source, destination string) error
	// Ports lists port names that have all of flags set.
	Ports(flags PortFlags) ([]string, error)

	SampleRate() (int, error)
	BufferSize() (int, error)

	SetPortRegistrationCallback(fn RegistrationFunc) error
}
