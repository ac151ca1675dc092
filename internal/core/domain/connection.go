package domain

import (
	"encoding/json"
	"fmt"
)

// Role is what this machine does for one logical channel.
type Role string

const (
	// RoleSend: local capture feeds remote playback.
	RoleSend Role = "send"
	// RoleReceive: remote capture feeds local playback.
	RoleReceive Role = "receive"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSend, RoleReceive:
		return Role(s), nil
	default:
		return "", fmt.Errorf("invalid role %q: expected send or receive", s)
	}
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Pair is an ordered source -> destination wiring on one machine.
type Pair struct {
	Source      PortName `json:"source"`
	Destination PortName `json:"destination"`
}

func (p Pair) String() string {
	return fmt.Sprintf("%s -> %s", p.Source, p.Destination)
}

// PortConnection is a full routed path through the bridge:
// source -> local bridge -> network -> remote bridge -> destination.
type PortConnection struct {
	Role         Role     `json:"role"`
	Source       PortName `json:"source"`
	LocalBridge  PortName `json:"local_bridge"`
	RemoteBridge PortName `json:"remote_bridge"`
	Destination  PortName `json:"destination"`
}

// LocalPair returns the ports to wire on this machine.
func (c PortConnection) LocalPair() Pair {
	if c.Role == RoleSend {
		return Pair{Source: c.Source, Destination: c.LocalBridge}
	}
	return Pair{Source: c.LocalBridge, Destination: c.Destination}
}

// RemotePair returns the ports the peer must wire.
func (c PortConnection) RemotePair() Pair {
	if c.Role == RoleSend {
		return Pair{Source: c.RemoteBridge, Destination: c.Destination}
	}
	return Pair{Source: c.Source, Destination: c.RemoteBridge}
}

// ConnectRequest asks the server to wire one pair of its ports.
type ConnectRequest struct {
	Source      PortName `json:"source"`
	Destination PortName `json:"destination"`
	Role        Role     `json:"role"`
}

func (c PortConnection) RemoteRequest() ConnectRequest {
	pair := c.RemotePair()
	return ConnectRequest{Source: pair.Source, Destination: pair.Destination, Role: c.Role}
}

// Capability is the server's hardware and engine snapshot.
type Capability struct {
	InputChannelCount  int `json:"input_channel_count"`
	OutputChannelCount int `json:"output_channel_count"`
	SampleRate         int `json:"sample_rate"`
	BufferSize         int `json:"buffer_size"`
}

// SupportedSampleRate reports whether both ends can run at rate.
func SupportedSampleRate(rate int) bool {
	return rate == 44100 || rate == 48000
}
