package domain

import (
	"errors"
	"fmt"
)

// DefaultBridgeClient is the JACK client name the bridge process registers
// on the client machine.
const DefaultBridgeClient = "JackTrip"

// ChannelPair routes capture channel From to playback channel To. For a
// send, From is on this machine and To on the peer; a receive is the
// reverse.
type ChannelPair struct {
	From int
	To   int
}

// ChannelIntent is an ordered list of channel pairs. Bridge indices are
// assigned in this order, so the order is part of the input.
type ChannelIntent []ChannelPair

// ChannelLimitExceededError reports the first bridge index above the
// remote side's channel limit.
type ChannelLimitExceededError struct {
	Role           Role
	RequestedIndex int
	Limit          int
}

func (e *ChannelLimitExceededError) Error() string {
	return fmt.Sprintf("limit of available %s ports exceeded: bridge index %d > limit %d",
		e.Role, e.RequestedIndex, e.Limit)
}

type BuildOptions struct {
	// ClientName is how the server's bridge names this client's ports.
	ClientName string
	// LocalBridgeClient defaults to DefaultBridgeClient.
	LocalBridgeClient string

	Send    ChannelIntent
	Receive ChannelIntent

	// InputLimit bounds send entries, OutputLimit bounds receive entries.
	InputLimit  int
	OutputLimit int
}

// ConnectionMap is keyed by local bridge port. It is read-only once built.
type ConnectionMap struct {
	entries map[PortName]PortConnection
	order   []PortName
}

func (m *ConnectionMap) Get(localBridge PortName) (PortConnection, bool) {
	if m == nil {
		return PortConnection{}, false
	}
	conn, ok := m.entries[localBridge]
	return conn, ok
}

func (m *ConnectionMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// All returns the connections in build order.
func (m *ConnectionMap) All() []PortConnection {
	if m == nil {
		return nil
	}
	result := make([]PortConnection, len(m.order))
	for i, key := range m.order {
		result[i] = m.entries[key]
	}
	return result
}

// Counts returns how many send and receive channels the bridge must carry.
func (m *ConnectionMap) Counts() (send, receive int) {
	for _, conn := range m.All() {
		if conn.Role == RoleSend {
			send++
		} else {
			receive++
		}
	}
	return send, receive
}

// BuildConnectionMap turns the channel intents into routed connections.
func BuildConnectionMap(opts BuildOptions) (*ConnectionMap, error) {
	if opts.ClientName == "" {
		return nil, errors.New("client name is required")
	}
	if opts.LocalBridgeClient == "" {
		opts.LocalBridgeClient = DefaultBridgeClient
	}
	if err := validateIntent(RoleSend, opts.Send); err != nil {
		return nil, err
	}
	if err := validateIntent(RoleReceive, opts.Receive); err != nil {
		return nil, err
	}

	m := &ConnectionMap{
		entries: make(map[PortName]PortConnection, len(opts.Send)+len(opts.Receive)),
	}

	add := func(role Role, intent ChannelIntent, limit int) error {
		for i, pair := range intent {
			bridge := i + 1
			if bridge > limit {
				return &ChannelLimitExceededError{Role: role, RequestedIndex: bridge, Limit: limit}
			}
			conn := buildConnection(opts.ClientName, opts.LocalBridgeClient, role, pair, bridge)
			if _, exists := m.entries[conn.LocalBridge]; exists {
				return fmt.Errorf("bridge port %s assigned twice", conn.LocalBridge)
			}
			m.entries[conn.LocalBridge] = conn
			m.order = append(m.order, conn.LocalBridge)
		}
		return nil
	}

	if err := add(RoleSend, opts.Send, opts.InputLimit); err != nil {
		return nil, err
	}
	if err := add(RoleReceive, opts.Receive, opts.OutputLimit); err != nil {
		return nil, err
	}
	return m, nil
}

func buildConnection(clientName, bridgeClient string, role Role, pair ChannelPair, bridge int) PortConnection {
	localKind, remoteKind := KindSend, KindReceive
	if role == RoleReceive {
		localKind, remoteKind = KindReceive, KindSend
	}

	return PortConnection{
		Role:         role,
		Source:       Capture(pair.From),
		LocalBridge:  PortName{Client: bridgeClient, Kind: localKind, Index: bridge},
		RemoteBridge: PortName{Client: clientName, Kind: remoteKind, Index: bridge},
		Destination:  Playback(pair.To),
	}
}

func validateIntent(role Role, intent ChannelIntent) error {
	sources := make(map[int]struct{}, len(intent))
	destinations := make(map[int]struct{}, len(intent))

	for _, pair := range intent {
		if pair.From < 1 || pair.To < 1 {
			return fmt.Errorf("%s channel %d -> %d: channels start at 1", role, pair.From, pair.To)
		}
		if _, dup := sources[pair.From]; dup {
			return fmt.Errorf("%s: capture channel %d mapped twice", role, pair.From)
		}
		sources[pair.From] = struct{}{}

		// Two bridge channels into one playback port would mix silently.
		if _, dup := destinations[pair.To]; dup {
			return fmt.Errorf("%s: playback channel %d mapped twice", role, pair.To)
		}
		destinations[pair.To] = struct{}{}
	}
	return nil
}
