package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/diogoX451/jackson/internal/logging"
	"github.com/diogoX451/jackson/internal/metrics"
)

// ExitError is returned when a supervised process stops on its own.
type ExitError struct {
	Name string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Name, e.Code)
}

// Process runs a Command until its context is cancelled. Output is
// restreamed through a ProcessPrinter.
type Process struct {
	cmd          Command
	restart      bool
	restartDelay time.Duration
	stopTimeout  time.Duration
	restarts     atomic.Int64

	printer *logging.ProcessPrinter
	metrics *metrics.Metrics
	clock   clock.Clock
	log     *zap.Logger
}

type ProcessOption func(*Process)

// RestartOnCleanExit restarts the process when it exits with code 0.
// JackTrip does that when a peer disconnects.
func RestartOnCleanExit(delay time.Duration) ProcessOption {
	return func(p *Process) {
		p.restart = true
		p.restartDelay = delay
	}
}

func WithPrinter(printer *logging.ProcessPrinter) ProcessOption {
	return func(p *Process) { p.printer = printer }
}

func WithMetrics(m *metrics.Metrics) ProcessOption {
	return func(p *Process) { p.metrics = m }
}

// WithStopTimeout bounds how long a cancelled process and its inherited
// output may linger before it is killed.
func WithStopTimeout(d time.Duration) ProcessOption {
	return func(p *Process) { p.stopTimeout = d }
}

func WithProcessClock(clk clock.Clock) ProcessOption {
	return func(p *Process) { p.clock = clk }
}

func NewProcess(cmd Command, log *zap.Logger, opts ...ProcessOption) *Process {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Process{
		cmd:         cmd,
		stopTimeout: 5 * time.Second,
		clock:       clock.New(),
		log:         log.With(zap.String("process", cmd.Name)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.printer == nil {
		p.printer = logging.NewProcessPrinter(cmd.Name)
	}
	return p
}

// Run blocks until ctx is cancelled or the process fails. A process that
// is not restarted fails on any exit.
func (p *Process) Run(ctx context.Context) error {
	for {
		code, err := p.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		if code != 0 || !p.restart {
			return &ExitError{Name: p.cmd.Name, Code: code}
		}

		p.restarts.Add(1)
		p.metrics.Restart(p.cmd.Name)
		p.log.Info("exited cleanly, restarting")
		if err := p.sleep(ctx); err != nil {
			return nil
		}
	}
}

// Restarts counts clean exits that were restarted.
func (p *Process) Restarts() int64 { return p.restarts.Load() }

func (p *Process) runOnce(ctx context.Context) (int, error) {
	cmd := exec.CommandContext(ctx, p.cmd.Name, p.cmd.Args...)
	cmd.Env = append(os.Environ(), p.cmd.Env()...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = p.stopTimeout

	// exec copies output into the pipe itself, so a grandchild holding the
	// descriptors open delays Wait by at most WaitDelay.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	p.printer.Println(fmt.Sprintf("Starting %s... (%s)", p.cmd.Name, p.cmd))
	if err := cmd.Start(); err != nil {
		pw.Close()
		return 0, fmt.Errorf("start %s: %w", p.cmd.Name, err)
	}

	var g errgroup.Group
	g.Go(func() error {
		err := p.printer.Restream(pr)
		// Keep the child from blocking on a full pipe.
		_, _ = io.Copy(io.Discard, pr)
		return err
	})

	err := cmd.Wait()
	pw.Close()
	if rerr := g.Wait(); rerr != nil {
		p.log.Debug("restream stopped", zap.Error(rerr))
	}

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	p.printer.Println(fmt.Sprintf("Exited with code %d", code))

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		if cmd.ProcessState == nil {
			return code, fmt.Errorf("wait %s: %w", p.cmd.Name, err)
		}
		// Exited, but its output was cut short.
		p.log.Debug("output not drained", zap.Error(err))
	}
	return code, nil
}

func (p *Process) sleep(ctx context.Context) error {
	if p.restartDelay <= 0 {
		return ctx.Err()
	}
	timer := p.clock.Timer(p.restartDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
