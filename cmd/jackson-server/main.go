// jackson-server runs the JACK server side of a session: jackd, the
// JackTrip server and the HTTP API clients wire their channels through.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/diogoX451/jackson/internal/bridge"
	"github.com/diogoX451/jackson/internal/config"
	"github.com/diogoX451/jackson/internal/logging"
	"github.com/diogoX451/jackson/internal/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := config.Flags("server")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	cfg, err := config.LoadServer(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer log.Sync()

	tools := []string{"jacktrip", "jack_lsp", "jack_connect", "jack_samplerate", "jack_bufsize"}
	if cfg.Audio.StartJack {
		tools = append(tools, "jackd")
	}
	if err := bridge.CheckInstalled(tools...); err != nil {
		log.Error("missing tools", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting server",
		zap.String("jack_server", cfg.Audio.JackServerName),
		zap.Int("sample_rate", cfg.Audio.SampleRate),
		zap.Int("buffer_size", cfg.Audio.BufferSize),
		zap.Int("jacktrip_port", cfg.Server.JackTripPort),
		zap.Int("api_port", cfg.Server.APIPort))

	if err := session.NewServer(cfg, log).Run(ctx); err != nil {
		log.Error("server failed", zap.Error(err))
		return exitCode(err)
	}
	log.Info("server stopped")
	return 0
}

// exitCode passes a child process's exit code through.
func exitCode(err error) int {
	var exitErr *bridge.ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		return exitErr.Code
	}
	return 1
}
