package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorKind tags a structured connect failure on the wire.
type ErrorKind string

const (
	KindPortNotFound                      ErrorKind = "PortNotFound"
	KindPlaybackPortAlreadyHasConnections ErrorKind = "PlaybackPortAlreadyHasConnections"
	KindFailedToConnectPorts              ErrorKind = "FailedToConnectPorts"
)

// ConnectError is a validation or wiring failure reported by a Connector.
type ConnectError interface {
	error
	Kind() ErrorKind
}

// PortSide says which end of a request was missing.
type PortSide string

const (
	SideSource      PortSide = "source"
	SideDestination PortSide = "destination"
)

type PortNotFoundError struct {
	Side PortSide `json:"side"`
	Name PortName `json:"name"`
}

func (e *PortNotFoundError) Kind() ErrorKind { return KindPortNotFound }

func (e *PortNotFoundError) Error() string {
	return fmt.Sprintf("%s port not found: %s", e.Side, e.Name)
}

type PlaybackPortAlreadyHasConnectionsError struct {
	Port PortName `json:"port"`
	// ExistingConnections are raw JACK names: a playback port may be fed
	// by ports that do not follow the kind_index convention.
	ExistingConnections []string `json:"existing_connections"`
}

func (e *PlaybackPortAlreadyHasConnectionsError) Kind() ErrorKind {
	return KindPlaybackPortAlreadyHasConnections
}

func (e *PlaybackPortAlreadyHasConnectionsError) Error() string {
	return fmt.Sprintf("playback port %s already has connections: %s",
		e.Port, strings.Join(e.ExistingConnections, ", "))
}

type FailedToConnectPortsError struct {
	Source      PortName `json:"source"`
	Destination PortName `json:"destination"`
}

func (e *FailedToConnectPortsError) Kind() ErrorKind { return KindFailedToConnectPorts }

func (e *FailedToConnectPortsError) Error() string {
	return fmt.Sprintf("failed to connect ports %s -> %s", e.Source, e.Destination)
}

// DecodeConnectError rebuilds a ConnectError from its tag and payload.
func DecodeConnectError(kind ErrorKind, data []byte) (ConnectError, error) {
	var target ConnectError
	switch kind {
	case KindPortNotFound:
		target = &PortNotFoundError{}
	case KindPlaybackPortAlreadyHasConnections:
		target = &PlaybackPortAlreadyHasConnectionsError{}
	case KindFailedToConnectPorts:
		target = &FailedToConnectPortsError{}
	default:
		return nil, fmt.Errorf("unknown error kind %q", kind)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return target, nil
}
