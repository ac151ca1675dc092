package jack

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/diogoX451/jackson/internal/core/ports"
)

// Runner executes one JACK tool and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// noise are lines libjack prints on a normal client shutdown.
var noise = []string{
	"CheckRes error",
	"JackSocketClientChannel read fail",
	"Cannot read socket fd = ",
}

// ExecRunner runs the JACK command-line tools against the named server.
func ExecRunner(serverName string, log *zap.Logger) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Env = append(os.Environ(), "JACK_DEFAULT_SERVER="+serverName)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		forwardStderr(log, name, stderr.Bytes())
		if err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = strings.TrimSpace(stdout.String())
			}
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return stdout.Bytes(), nil
	}
}

func forwardStderr(log *zap.Logger, tool string, data []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isNoise(line) {
			continue
		}
		log.Debug(line, zap.String("tool", tool))
	}
}

func isNoise(line string) bool {
	for _, n := range noise {
		if strings.Contains(line, n) {
			return true
		}
	}
	return false
}

type portInfo struct {
	flags       ports.PortFlags
	connections []string
}

// CLIGraph implements ports.AudioGraph with jack_lsp and jack_connect.
// Port registration is observed by polling the port list while active.
type CLIGraph struct {
	run          Runner
	pollInterval time.Duration
	timeout      time.Duration
	log          *zap.Logger

	mu       sync.Mutex
	callback ports.RegistrationFunc
	cancel   context.CancelFunc
	done     chan struct{}
}

type CLIOption func(*CLIGraph)

func WithRunner(run Runner) CLIOption {
	return func(g *CLIGraph) { g.run = run }
}

func WithPollInterval(d time.Duration) CLIOption {
	return func(g *CLIGraph) { g.pollInterval = d }
}

var _ ports.AudioGraph = (*CLIGraph)(nil)

func NewCLIGraph(serverName string, log *zap.Logger, opts ...CLIOption) *CLIGraph {
	if log == nil {
		log = zap.NewNop()
	}
	g := &CLIGraph{
		run:          ExecRunner(serverName, log),
		pollInterval: 100 * time.Millisecond,
		timeout:      5 * time.Second,
		log:          log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *CLIGraph) exec(name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	out, err := g.run(ctx, name, args...)
	if err != nil {
		return nil, &GraphError{Op: name, Err: err}
	}
	return out, nil
}

func (g *CLIGraph) snapshot() (map[string]portInfo, error) {
	out, err := g.exec("jack_lsp", "-c", "-p")
	if err != nil {
		return nil, err
	}
	return parseLsp(out), nil
}

// parseLsp reads `jack_lsp -c -p`: port names start at column 0, their
// connections and properties follow on indented lines.
func parseLsp(out []byte) map[string]portInfo {
	result := make(map[string]portInfo)
	var current string

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			current = line
			result[current] = portInfo{}
			continue
		}
		if current == "" {
			continue
		}

		info := result[current]
		trimmed := strings.TrimSpace(line)
		if props, ok := strings.CutPrefix(trimmed, "properties:"); ok {
			info.flags = parseProperties(props)
		} else {
			info.connections = append(info.connections, trimmed)
		}
		result[current] = info
	}
	return result
}

func parseProperties(props string) ports.PortFlags {
	var flags ports.PortFlags
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(p) {
		case "input":
			flags |= ports.PortIsInput
		case "output":
			flags |= ports.PortIsOutput
		case "physical":
			flags |= ports.PortIsPhysical
		}
	}
	return flags
}

func (g *CLIGraph) PortExists(name string) (bool, error) {
	snap, err := g.snapshot()
	if err != nil {
		return false, err
	}
	_, ok := snap[name]
	return ok, nil
}

func (g *CLIGraph) Connections(name string) ([]string, error) {
	snap, err := g.snapshot()
	if err != nil {
		return nil, err
	}
	info, ok := snap[name]
	if !ok {
		return nil, &GraphError{Op: "get_port_by_name", Err: fmt.Errorf("port %s not found", name)}
	}
	return info.connections, nil
}

func (g *CLIGraph) Connect(source, destination string) error {
	_, err := g.exec("jack_connect", source, destination)
	return err
}

func (g *CLIGraph) Ports(flags ports.PortFlags) ([]string, error) {
	snap, err := g.snapshot()
	if err != nil {
		return nil, err
	}
	var names []string
	for name, info := range snap {
		if info.flags&flags == flags {
			names = append(names, name)
		}
	}
	return names, nil
}

var firstInt = regexp.MustCompile(`\d+`)

func (g *CLIGraph) readInt(tool string) (int, error) {
	out, err := g.exec(tool)
	if err != nil {
		return 0, err
	}
	match := firstInt.Find(out)
	if match == nil {
		return 0, &GraphError{Op: tool, Err: fmt.Errorf("unexpected output %q", strings.TrimSpace(string(out)))}
	}
	return strconv.Atoi(string(match))
}

func (g *CLIGraph) SampleRate() (int, error) { return g.readInt("jack_samplerate") }

func (g *CLIGraph) BufferSize() (int, error) { return g.readInt("jack_bufsize") }

func (g *CLIGraph) SetPortRegistrationCallback(fn ports.RegistrationFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return errors.New("registration callback must be set before activation")
	}
	g.callback = fn
	return nil
}

// Activate takes a baseline of the current ports and starts watching for
// changes. Ports present at activation are not reported.
func (g *CLIGraph) Activate(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel != nil {
		return nil
	}
	baseline, err := g.snapshot()
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.cancel = cancel
	g.done = make(chan struct{})
	go g.watch(watchCtx, baseline, g.callback, g.done)
	return nil
}

func (g *CLIGraph) watch(ctx context.Context, known map[string]portInfo, fn ports.RegistrationFunc, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current, err := g.snapshot()
		if err != nil {
			g.log.Debug("port poll failed", zap.Error(err))
			continue
		}
		if fn == nil {
			known = current
			continue
		}
		for name := range current {
			if _, ok := known[name]; !ok {
				fn(name, true)
			}
		}
		for name := range known {
			if _, ok := current[name]; !ok {
				fn(name, false)
			}
		}
		known = current
	}
}

func (g *CLIGraph) Deactivate() error {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (g *CLIGraph) Close() error {
	return g.Deactivate()
}
