// jackson-watch tails the wiring events servers and clients publish to
// NATS.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	eventadapter "github.com/diogoX451/jackson/internal/adapters/events"
	"github.com/diogoX451/jackson/internal/core/ports"
	"github.com/diogoX451/jackson/internal/events"
	"github.com/diogoX451/jackson/internal/events/nats"
)

func main() {
	if err := run(); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("jackson-watch", pflag.ContinueOnError)
	url := fs.String("nats-url", "nats://localhost:4222", "NATS server")
	session := fs.String("session", "", "only show events of this session")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	bus, err := nats.New(nats.Config{
		URL:           *url,
		Name:          "jackson-watch",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		Ephemeral:     true,
	})
	if err != nil {
		return err
	}
	defer bus.Close()

	if err := bus.SetupWiringStream(); err != nil {
		return fmt.Errorf("setup stream: %w", err)
	}

	sub, err := eventadapter.SubscribeWiring(bus, func(_ context.Context, subject string, ev ports.WiringEvent) error {
		if *session != "" && ev.Session != *session {
			return nil
		}
		printEvent(subject, ev)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	pterm.Info.Printfln("watching %s on %s", events.SubjectWiring, *url)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func printEvent(subject string, ev ports.WiringEvent) {
	line := formatEvent(ev)
	if subject == events.SubjectFailed {
		pterm.Error.Println(line)
		return
	}
	pterm.Success.Println(line)
}

func formatEvent(ev ports.WiringEvent) string {
	line := fmt.Sprintf("%s [%s] %s %s -> %s",
		ev.At.Format("15:04:05"), ev.Machine, ev.Role, ev.Source, ev.Destination)
	if ev.Session != "" {
		line += " session=" + ev.Session
	}
	if ev.Error != "" {
		kind := string(ev.ErrorKind)
		if kind == "" {
			kind = "error"
		}
		line += fmt.Sprintf(" %s: %s", kind, ev.Error)
	}
	return line
}
