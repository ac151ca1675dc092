// Package bridge starts and supervises jackd and JackTrip.
package bridge

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/diogoX451/jackson/internal/core/domain"
)

// ClientName is the JACK client name JackTrip registers its ports under
// on the client machine.
const ClientName = domain.DefaultBridgeClient

// Command is a program invocation bound to one JACK server.
type Command struct {
	Name   string
	Args   []string
	// Server is exported as JACK_DEFAULT_SERVER.
	Server string
}

func (c Command) Env() []string {
	if c.Server == "" {
		return nil
	}
	return []string{"JACK_DEFAULT_SERVER=" + c.Server}
}

func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, arg := range c.Args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			arg = strconv.Quote(arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

type JackdOptions struct {
	ServerName string
	Driver     string
	// Device is left to the driver when empty.
	Device     string
	SampleRate int
	BufferSize int
}

func Jackd(o JackdOptions) Command {
	args := []string{"--name", o.ServerName, "--sync", "-d", o.Driver}
	if o.Device != "" {
		args = append(args, "--device", o.Device)
	}
	args = append(args,
		"--rate", strconv.Itoa(o.SampleRate),
		"--period", strconv.Itoa(o.BufferSize))
	return Command{Name: "jackd", Args: args, Server: o.ServerName}
}

// JackTripServer listens for clients on port. Port wiring is left to the
// connector.
func JackTripServer(jackServer string, port int) Command {
	return Command{
		Name: "jacktrip",
		Args: []string{
			"--jacktripserver",
			"--bindport", strconv.Itoa(port),
			"--nojackportsconnect",
			"--udprt",
		},
		Server: jackServer,
	}
}

type JackTripClientOptions struct {
	JackServer      string
	ServerHost      string
	ServerPort      int
	SendChannels    int
	ReceiveChannels int
	// RemoteName is how the server names this client's ports.
	RemoteName      string
}

func JackTripClient(o JackTripClientOptions) Command {
	return Command{
		Name: "jacktrip",
		Args: []string{
			"--pingtoserver", o.ServerHost,
			// JackTrip rejects one-way streams.
			"--receivechannels", strconv.Itoa(max(o.ReceiveChannels, 1)),
			"--sendchannels", strconv.Itoa(max(o.SendChannels, 1)),
			"--peerport", strconv.Itoa(o.ServerPort),
			"--clientname", ClientName,
			"--remotename", o.RemoteName,
			"--nojackportsconnect",
			"--udprt",
		},
		Server: o.JackServer,
	}
}

// CheckInstalled reports every program missing from PATH.
func CheckInstalled(names ...string) error {
	var err error
	for _, name := range names {
		if _, lookErr := exec.LookPath(name); lookErr != nil {
			err = multierr.Append(err, fmt.Errorf("install %s before running: %w", name, lookErr))
		}
	}
	return err
}
