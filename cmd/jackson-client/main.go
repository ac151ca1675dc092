// jackson-client joins a jackson server: it matches the server's audio
// engine, starts the JackTrip client and wires the configured channels on
// both machines.
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
	fs := config.Flags("client")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	cfg, err := config.LoadClient(fs)
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

	tools := []string{"jacktrip", "jack_lsp", "jack_connect"}
	if cfg.Audio.StartJack {
		tools = append(tools, "jackd")
	}
	if err := bridge.CheckInstalled(tools...); err != nil {
		log.Error("missing tools", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := session.NewClient(cfg, log)
	log.Info("starting client",
		zap.String("name", cfg.Name),
		zap.String("server", cfg.APIURL()),
		zap.String("session", client.Session()),
		zap.Int("send", len(cfg.Ports.Send)),
		zap.Int("receive", len(cfg.Ports.Receive)))

	if err := client.Run(ctx); err != nil {
		log.Error("client failed", zap.Error(err))
		var exitErr *bridge.ExitError
		if errors.As(err, &exitErr) && exitErr.Code > 0 {
			return exitErr.Code
		}
		return 1
	}
	log.Info("client stopped")
	return 0
}
