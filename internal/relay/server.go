// Package relay is the HTTP service that accepts notify requests and hands
// them to the delivery pipeline.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"notifyrelay/internal/config"
	"notifyrelay/internal/resolve"
	"notifyrelay/internal/runtime/supervisor"
	"notifyrelay/internal/sink"
	logx "notifyrelay/pkg/logx"
)

type Config struct {
	Host string
	Port int
	// PortScan is how many ports after Port are tried when Port is taken.
	PortScan int

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	// DrainTimeout bounds how long shutdown waits for in-flight deliveries.
	DrainTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = config.DefaultHost
	}
	if c.PortScan == 0 {
		c.PortScan = DefaultPortScan
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 5 * time.Second
	}
}

// DeliveryPipeline is what the relay needs from sink.Dispatcher.
type DeliveryPipeline interface {
	Dispatcher
	SetSink(s sink.Sink)
	Drain(ctx context.Context) error
}

type Server struct {
	cfg        Config
	log        logx.Logger
	resolver   *resolve.Resolver
	dispatcher DeliveryPipeline
	metrics    *Metrics
	gatherer   prometheus.Gatherer

	watcher   *config.Watcher
	applied   *config.MasterConfig // last config applied; touched only by config.apply
	logSvc    *logx.Service
	logLevel  string
	buildSink func(*config.SinkConfig) (sink.Sink, error)
	pprof     *pprofServer

	handler http.Handler

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
}

type Option func(*Server)

// WithMetrics exposes m at /metrics through g.
func WithMetrics(m *Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithWatcher enables hot reload of the master config. logSvc and
// envLevel let a changed logging section be applied live; logSvc may be nil.
func WithWatcher(w *config.Watcher, logSvc *logx.Service, envLevel string) Option {
	return func(s *Server) {
		s.watcher = w
		s.logSvc = logSvc
		s.logLevel = envLevel
	}
}

func New(cfg Config, resolver *resolve.Resolver, dispatcher DeliveryPipeline, log logx.Logger, opts ...Option) *Server {
	cfg.applyDefaults()
	s := &Server{
		cfg:        cfg,
		log:        log.With(logx.String("comp", "relay")),
		resolver:   resolver,
		dispatcher: dispatcher,
		buildSink:  sink.FromConfig,
		pprof:      newPprofServer(log),
		ready:      make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	h := &handlers{
		resolver:   resolver,
		dispatcher: dispatcher,
		metrics:    s.metrics,
		log:        s.log,
		now:        time.Now,
	}
	s.handler = newRouter(h, s.gatherer, s.log)
	return s
}

// Handler returns the HTTP handler; useful with httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the bound address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run binds, serves and blocks until ctx is cancelled or the server fails.
// On the way out it stops accepting requests, then drains in-flight
// deliveries for up to DrainTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, port, err := listenFirstFree(s.cfg.Host, s.cfg.Port, s.cfg.PortScan)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)
	s.announce(port)

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(s.log), supervisor.WithCancelOnError(true))
	sup.Go("http", func(ctx context.Context) error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if s.watcher != nil {
		s.applied = s.watcher.Get()
		if s.applied != nil {
			s.pprof.Apply(ctx, s.applied.Pprof)
		}
		updates := s.watcher.Subscribe(1)
		sup.GoRestart("config.watch", s.watcher.Watch)
		sup.Go0("config.apply", func(ctx context.Context) {
			defer s.watcher.Unsubscribe(updates)
			for {
				select {
				case <-ctx.Done():
					return
				case cfg, ok := <-updates:
					if !ok {
						return
					}
					s.applyConfig(cfg)
				}
			}
		})
	}

	<-sup.Context().Done()
	s.log.Info("relay shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http shutdown incomplete", logx.Err(err))
	}
	cancel()
	s.pprof.Stop(context.Background())

	drainCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	if err := s.dispatcher.Drain(drainCtx); err != nil {
		s.log.Warn("deliveries still in flight at shutdown", logx.Err(err))
	}
	cancel()

	stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return sup.Stop(stopCtx)
}

func (s *Server) announce(port int) {
	if s.cfg.Port != 0 && port != s.cfg.Port {
		s.log.Warn("preferred port in use; using next free port",
			logx.Int("preferred", s.cfg.Port),
			logx.Int("port", port),
		)
	}
	s.log.Info("relay listening", logx.String("addr", s.Addr().String()))
	for _, h := range advertisedHosts(s.cfg.Host) {
		s.log.Info("agents can connect with", logx.String("hint", "notifyrelay install agent --url "+baseURL(h, port)))
	}
}

// applyConfig swaps in the parts of a reloaded master config that can
// change without a restart.
func (s *Server) applyConfig(cfg *config.MasterConfig) {
	changed, attrs := config.SummarizeConfigChange(s.applied, cfg)
	s.applied = cfg
	s.resolver.SetFile(cfg.NotificationOrEmpty())

	if s.logSvc != nil && slices.Contains(changed, "logging") {
		s.logSvc.Apply(cfg.LogxConfig(s.logLevel))
	}

	if slices.Contains(changed, "sinks") {
		sk, err := s.buildSink(cfg.Sinks)
		if err != nil {
			s.log.Warn("sink config rejected; keeping previous sinks", logx.Err(err))
		} else {
			s.dispatcher.SetSink(sk)
		}
	}

	if slices.Contains(changed, "pprof") {
		s.pprof.Apply(context.Background(), cfg.Pprof)
	}

	s.metrics.RecordReload()
	s.log.Info("config reloaded", append([]logx.Field{logx.Any("changed", changed)}, attrs...)...)
	if restart := config.RequiresRestart(changed); len(restart) > 0 {
		s.log.Warn("some config changes need a relay restart", logx.Any("sections", restart))
	}
}
