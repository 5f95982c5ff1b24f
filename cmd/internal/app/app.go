// Package app wires the Parley server runtime: config, logging, HTTP routes,
// and the chat gateway over one shared roster and bus.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"parley/cmd/internal/chat"
)

// App owns every piece of shared state and the HTTP server wiring around it.
type App struct {
	cfg Config
	log *slog.Logger

	registry *prometheus.Registry
	roster   *chat.Roster
	bus      *chat.Bus
	metrics  *chat.Metrics
	gateway  *chat.Gateway

	router http.Handler
	ready  atomic.Bool
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log *slog.Logger) *App {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
		roster:   chat.NewRoster(),
		bus:      chat.NewBus(cfg.BusCapacity),
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = chat.NewMetrics(a.registry, a.bus)

	a.gateway = chat.NewGateway(log, a.roster, a.bus, a.metrics, chat.GatewayConfig{
		AllowedOrigins:    cfg.AllowedOrigins,
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
		RateLimit:         cfg.RateLimit,
		RateWindow:        cfg.RateWindow,
	})

	a.router = a.routes()
	a.ready.Store(true)
	return a
}

// Handler exposes the wired routes. Tests serve it directly.
func (a *App) Handler() http.Handler {
	return a.router
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error. On the way out it stops intake, closes the bus, and waits for
// open sessions to finish their teardown.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    a.cfg.Addr,
		Handler: a.router,

		// No global read or write timeouts: sessions hold their
		// connection for as long as the chatter stays.
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
	}

	obsCtx, obsCancel := context.WithCancel(context.Background())
	obsDone := make(chan struct{})
	go func() {
		defer close(obsDone)
		a.metrics.ObserveBus(obsCtx, a.log, a.bus)
	}()
	defer func() {
		obsCancel()
		<-obsDone
	}()

	a.log.Info("server.start",
		"addr", a.cfg.Addr,
		"bus_capacity", a.cfg.BusCapacity,
		"origins", a.cfg.AllowedOrigins,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	a.ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		a.log.Error("server.shutdown.fail", "err", shutdownErr)
	}

	// Ending the bus is what actually unwinds the websocket handlers;
	// Shutdown does not track hijacked connections.
	a.bus.Close()

	drained := make(chan struct{})
	go func() {
		a.gateway.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		a.log.Warn("server.drain.timeout")
	}

	a.log.Info("server.stopped")
	return shutdownErr
}
