package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/diogoX451/jackson/internal/api"
	"github.com/diogoX451/jackson/internal/bridge"
	"github.com/diogoX451/jackson/internal/config"
	"github.com/diogoX451/jackson/internal/core/domain"
	"github.com/diogoX451/jackson/internal/core/service"
	"github.com/diogoX451/jackson/internal/jack"
	"github.com/diogoX451/jackson/internal/logging"
	"github.com/diogoX451/jackson/internal/metrics"
)

// Client asks the server for its capability, starts a local jackd that
// matches it, then runs the JackTrip client and the coordinator.
type Client struct {
	cfg     *config.ClientConfig
	opts    options
	remote  *api.Client
	metrics *metrics.Metrics
	log     *zap.Logger

	coordinator *service.Coordinator
	ready       chan struct{}
}

func NewClient(cfg *config.ClientConfig, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:  cfg,
		opts: buildOptions(opts),
		remote: api.NewClient(cfg.APIURL(), log.Named(logging.API),
			api.WithRetry(cfg.API.Attempts, cfg.API.Interval)),
		metrics: metrics.New(),
		log:     log,
		ready:   make(chan struct{}),
	}
}

// Session is the id the server journals this client's wiring under.
func (c *Client) Session() string { return c.remote.Session() }

// Ready is closed once the coordinator is built.
func (c *Client) Ready() <-chan struct{} { return c.ready }

// Coordinator is nil until Ready is closed.
func (c *Client) Coordinator() *service.Coordinator { return c.coordinator }

func (c *Client) Run(ctx context.Context) error {
	capability, err := c.remote.Capability(ctx)
	if err != nil {
		return fmt.Errorf("server capability: %w", err)
	}
	c.log.Info("server capability",
		zap.Int("inputs", capability.InputChannelCount),
		zap.Int("outputs", capability.OutputChannelCount),
		zap.Int("sample_rate", capability.SampleRate),
		zap.Int("buffer_size", capability.BufferSize))

	conns, err := domain.BuildConnectionMap(domain.BuildOptions{
		ClientName:        c.cfg.Name,
		LocalBridgeClient: bridge.ClientName,
		Send:              c.cfg.Ports.Send.Intent(),
		Receive:           c.cfg.Ports.Receive.Intent(),
		InputLimit:        capability.InputChannelCount,
		OutputLimit:       capability.OutputChannelCount,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if c.opts.processes && c.cfg.Audio.StartJack {
		jackd := bridge.NewProcess(bridge.Jackd(bridge.JackdOptions{
			ServerName: c.cfg.Audio.JackServerName,
			Driver:     c.cfg.Audio.Driver,
			Device:     c.cfg.Audio.Device,
			SampleRate: capability.SampleRate,
			BufferSize: capability.BufferSize,
		}), c.log.Named(logging.Bridge), bridge.WithMetrics(c.metrics))
		g.Go(func() error { return jackd.Run(gctx) })
	}

	g.Go(func() error { return c.wire(gctx, conns) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *Client) wire(ctx context.Context, conns *domain.ConnectionMap) (err error) {
	graph := c.opts.graph
	if graph == nil {
		graph = jack.NewCLIGraph(c.cfg.Audio.JackServerName, c.log.Named(logging.Jack))
	}
	client := jack.NewClient("jackson", graph, c.log.Named(logging.Jack))
	if err := client.WaitReady(ctx, jackStartup); err != nil {
		return err
	}

	events := openEvents(c.cfg.NATS, "jackson-client-"+c.cfg.Name, c.log)
	defer func() {
		err = multierr.Combine(err, events.Close(), client.Close())
	}()

	c.coordinator = service.NewCoordinator(client, c.remote, conns, c.log.Named(logging.Coordinator),
		service.WithCoordinatorRetry(retryPolicy(c.cfg.Retry)),
		service.WithCoordinatorEvents(events),
		service.WithCoordinatorMetrics(c.metrics),
		service.WithSessionID(c.remote.Session()),
	)
	close(c.ready)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.coordinator.Run(gctx) })

	if c.opts.processes {
		send, receive := conns.Counts()
		jacktrip := bridge.NewProcess(bridge.JackTripClient(bridge.JackTripClientOptions{
			JackServer:      c.cfg.Audio.JackServerName,
			ServerHost:      c.cfg.Server.Host,
			ServerPort:      c.cfg.Server.JackTripPort,
			SendChannels:    send,
			ReceiveChannels: receive,
			RemoteName:      c.cfg.Name,
		}), c.log.Named(logging.Bridge),
			bridge.RestartOnCleanExit(bridgeRestartDelay),
			bridge.WithMetrics(c.metrics))
		g.Go(func() error { return jacktrip.Run(gctx) })
	}

	err = g.Wait()
	c.log.Info("session ended",
		zap.Int("wired", c.coordinator.Wired()),
		zap.Int("channels", conns.Len()))
	return err
}
