package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// PortKind discriminates JACK ports by what they carry.
type PortKind string

const (
	KindCapture  PortKind = "capture"
	KindPlayback PortKind = "playback"
	KindSend     PortKind = "send"
	KindReceive  PortKind = "receive"
)

func (k PortKind) Valid() bool {
	switch k {
	case KindCapture, KindPlayback, KindSend, KindReceive:
		return true
	default:
		return false
	}
}

// SystemClient is the JACK client owning the hardware ports.
const SystemClient = "system"

// PortName identifies a port in a JACK graph: "{client}:{kind}_{index}".
type PortName struct {
	Client string
	Kind   PortKind
	Index  int
}

func (p PortName) String() string {
	return fmt.Sprintf("%s:%s_%d", p.Client, p.Kind, p.Index)
}

// IsHardware reports whether the port is a capture or playback port.
func (p PortName) IsHardware() bool {
	return p.Kind == KindCapture || p.Kind == KindPlayback
}

// IsBridge reports whether the port belongs to the bridge transport.
func (p PortName) IsBridge() bool {
	return p.Kind == KindSend || p.Kind == KindReceive
}

func (p PortName) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PortName) UnmarshalText(text []byte) error {
	parsed, err := ParsePortName(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePortName parses a canonical port name. Only names that render back
// to the same string are accepted.
func ParsePortName(name string) (PortName, error) {
	sep := strings.LastIndex(name, ":")
	if sep <= 0 || sep == len(name)-1 {
		return PortName{}, fmt.Errorf("invalid port name %q: expected client:kind_index", name)
	}
	client, suffix := name[:sep], name[sep+1:]

	parts := strings.Split(suffix, "_")
	if len(parts) != 2 {
		return PortName{}, fmt.Errorf("invalid port name %q: suffix must be kind_index", name)
	}

	kind := PortKind(parts[0])
	if !kind.Valid() {
		return PortName{}, fmt.Errorf("invalid port name %q: unknown kind %q", name, parts[0])
	}

	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 1 || strconv.Itoa(idx) != parts[1] {
		return PortName{}, fmt.Errorf("invalid port name %q: index must be a positive integer", name)
	}

	return PortName{Client: client, Kind: kind, Index: idx}, nil
}

// MustParsePortName is ParsePortName for literals.
func MustParsePortName(name string) PortName {
	p, err := ParsePortName(name)
	if err != nil {
		panic(err)
	}
	return p
}

func Capture(idx int) PortName {
	return PortName{Client: SystemClient, Kind: KindCapture, Index: idx}
}

func Playback(idx int) PortName {
	return PortName{Client: SystemClient, Kind: KindPlayback, Index: idx}
}
