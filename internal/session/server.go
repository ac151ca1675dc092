package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/diogoX451/jackson/internal/api"
	"github.com/diogoX451/jackson/internal/bridge"
	"github.com/diogoX451/jackson/internal/config"
	"github.com/diogoX451/jackson/internal/core/service"
	"github.com/diogoX451/jackson/internal/jack"
	"github.com/diogoX451/jackson/internal/logging"
	"github.com/diogoX451/jackson/internal/metrics"
	"github.com/diogoX451/jackson/internal/store"
)

// Server runs jackd, the JackTrip server and the connector API.
type Server struct {
	cfg     *config.ServerConfig
	opts    options
	metrics *metrics.Metrics
	log     *zap.Logger

	listener net.Listener
	ready    chan struct{}
}

func NewServer(cfg *config.ServerConfig, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		opts:    buildOptions(opts),
		metrics: metrics.New(),
		log:     log,
		ready:   make(chan struct{}),
	}
}

// Listen binds the API address ahead of Run. Run binds it itself
// otherwise.
func (s *Server) Listen() (net.Addr, error) {
	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.APIPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	return ln.Addr(), nil
}

// Ready is closed once the API accepts requests.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Run blocks until ctx is cancelled or a component fails. A cancelled ctx
// is a clean stop.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.opts.processes && s.cfg.Audio.StartJack {
		jackd := bridge.NewProcess(bridge.Jackd(bridge.JackdOptions{
			ServerName: s.cfg.Audio.JackServerName,
			Driver:     s.cfg.Audio.Driver,
			Device:     s.cfg.Audio.Device,
			SampleRate: s.cfg.Audio.SampleRate,
			BufferSize: s.cfg.Audio.BufferSize,
		}), s.log.Named(logging.Bridge), bridge.WithMetrics(s.metrics))
		g.Go(func() error { return jackd.Run(gctx) })
	}

	g.Go(func() error { return s.serve(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) serve(ctx context.Context) (err error) {
	graph := s.opts.graph
	if graph == nil {
		graph = jack.NewCLIGraph(s.cfg.Audio.JackServerName, s.log.Named(logging.Jack))
	}
	client := jack.NewClient("server", graph, s.log.Named(logging.Jack))
	if err := client.WaitReady(ctx, jackStartup); err != nil {
		return err
	}

	events := openEvents(s.cfg.NATS, "jackson-server", s.log)
	journal := store.OpenJournal(store.Config{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
		TTL:      s.cfg.Redis.TTL,
	}, s.log)
	defer func() {
		err = multierr.Combine(err, journal.Close(), events.Close(), client.Close())
	}()

	connector := service.NewConnector(client, s.log.Named(logging.Connector),
		service.WithConnectorRetry(retryPolicy(s.cfg.Retry)),
		service.WithJournal(journal),
		service.WithConnectorEvents(events),
		service.WithConnectorMetrics(s.metrics),
	)

	if s.listener == nil {
		if _, err := s.Listen(); err != nil {
			return err
		}
	}
	srv := &http.Server{
		Handler:           api.NewServer(connector, journal, s.metrics, s.log.Named(logging.API)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("api listening", zap.Stringer("addr", s.listener.Addr()))
		close(s.ready)
		if err := srv.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if s.opts.processes {
		jacktrip := bridge.NewProcess(
			bridge.JackTripServer(s.cfg.Audio.JackServerName, s.cfg.Server.JackTripPort),
			s.log.Named(logging.Bridge),
			bridge.RestartOnCleanExit(bridgeRestartDelay),
			bridge.WithMetrics(s.metrics),
		)
		g.Go(func() error { return jacktrip.Run(gctx) })
	}

	return g.Wait()
}
