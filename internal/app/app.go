// v3
// internal/app/app.go

// Package app wires configuration, logging, metrics, delivery loops,
// and the status HTTP server into one runnable simulator.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"log/slog"

	"github.com/nada0038/rideau-canal-sensor-simulation/internal/channel"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/config"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/delivery"
	httpserver "github.com/nada0038/rideau-canal-sensor-simulation/internal/http"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/metrics"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/sensor"
)

// channelFactory builds the delivery transport for one site from its
// connection string.
type channelFactory func(site config.Site, connString string) (channel.DeviceChannel, error)

type siteChannel struct {
	site config.Site
	ch   channel.DeviceChannel
}

// Application owns every component of the running simulator: one
// delivery loop and channel per surviving site, the shared metrics
// registry, and the status HTTP server.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	logFile  *os.File
	met      *metrics.Metrics
	health   *httpserver.HealthState
	server   *http.Server
	loops    []*delivery.Loop
	channels []siteChannel
}

// New prepares a fully wired simulator for the selected sites. A site
// without a credential, with a malformed credential, or whose channel
// refuses its first connection is skipped with a warning; New fails
// only when no site survives.
func New(cfg config.Config, sites []config.Site) (*Application, error) {
	return newWithFactory(cfg, sites, nil)
}

func newWithFactory(cfg config.Config, sites []config.Site, factory channelFactory) (*Application, error) {
	if len(sites) == 0 {
		return nil, errors.New("no sites selected")
	}

	logPath := filepath.Clean(cfg.LogFilePath)
	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	lf, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := newLogger(lf)
	met := metrics.New()
	if factory == nil {
		factory = transportFactory(cfg, logger)
	}

	app := &Application{
		cfg:     cfg,
		logger:  logger,
		logFile: lf,
		met:     met,
		health:  httpserver.NewHealthState(),
	}

	seedBase := time.Now().UnixNano()
	for i, site := range sites {
		siteLog := logger.With(slog.String("site", site.Key))

		connString, ok := site.ConnectionString()
		if !ok {
			siteLog.Warn("credential_missing", slog.String("env", site.EnvVar()))
			continue
		}
		ch, err := factory(site, connString)
		if err != nil {
			siteLog.Warn("channel_init_failed", slog.Any("err", err))
			continue
		}
		if err := ch.Connect(); err != nil {
			siteLog.Warn("initial_connect_failed", slog.Any("err", err))
			continue
		}
		met.Connected.WithLabelValues(site.Key).Set(1)

		gen := sensor.NewGenerator(site.Key, site.Name, rand.New(rand.NewSource(seedBase+int64(i))))
		app.loops = append(app.loops, delivery.New(site, gen, ch, cfg.SendInterval, logger, met))
		app.channels = append(app.channels, siteChannel{site: site, ch: ch})
	}
	if len(app.loops) == 0 {
		_ = lf.Close()
		return nil, errors.New("no sites with a working delivery channel")
	}

	router := httpserver.NewRouter(logger, app.health, app, met.Handler(), cfg.Transport)
	app.server = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return app, nil
}

// transportFactory maps the configured transport onto a concrete
// channel constructor.
func transportFactory(cfg config.Config, logger *slog.Logger) channelFactory {
	return func(site config.Site, connString string) (channel.DeviceChannel, error) {
		chLog := logger.With(
			slog.String("component", "channel"),
			slog.String("site", site.Key),
		)
		switch cfg.Transport {
		case config.TransportKafka:
			settings, err := channel.ParseKafkaConnString(connString)
			if err != nil {
				return nil, err
			}
			return channel.NewKafka(settings, cfg.TopicPrefix, site.Key, chLog), nil
		case config.TransportMQTT:
			settings, err := channel.ParseMQTTConnString(connString)
			if err != nil {
				return nil, err
			}
			return channel.NewMQTT(settings, cfg.TopicPrefix, site.Key, chLog), nil
		default:
			return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
		}
	}
}

// Logger exposes the configured slog logger so callers (such as main)
// can emit structured logs after initialization.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}

// Sites returns the sites that survived channel setup, in boot order.
func (a *Application) Sites() []config.Site {
	out := make([]config.Site, 0, len(a.channels))
	for _, sc := range a.channels {
		out = append(out, sc.site)
	}
	return out
}

// Snapshots implements the status source consumed by the HTTP router.
func (a *Application) Snapshots() []delivery.Snapshot {
	out := make([]delivery.Snapshot, 0, len(a.loops))
	for _, l := range a.loops {
		out = append(out, l.Snapshot())
	}
	return out
}

// Run starts the status server and one delivery loop per site, then
// blocks until the context is cancelled or the server dies. Every loop
// is joined and the HTTP server drained before Run returns.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpCh := make(chan error, 1)
	go func() {
		a.health.SetReady(true)
		a.logger.Info("http_server_listen", slog.String("address", a.cfg.ListenAddress))
		httpCh <- a.server.ListenAndServe()
	}()

	a.logger.Info("simulation_started",
		slog.Int("sites", len(a.loops)),
		slog.String("transport", a.cfg.Transport),
		slog.String("interval", a.cfg.SendInterval.String()),
	)

	var wg sync.WaitGroup
	for _, l := range a.loops {
		wg.Add(1)
		go func(l *delivery.Loop) {
			defer wg.Done()
			l.Run(ctx)
		}(l)
	}

	var httpErr error
	select {
	case err := <-httpCh:
		httpCh = nil
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http_server_error", slog.Any("err", err))
			httpErr = err
		}
		cancel()
	case <-ctx.Done():
	}

	wg.Wait()
	a.health.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server_shutdown_failed", slog.Any("err", err))
		if httpErr == nil {
			httpErr = fmt.Errorf("shutdown: %w", err)
		}
	}
	shutdownCancel()

	if httpCh != nil {
		if err := <-httpCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http_server_error", slog.Any("err", err))
			if httpErr == nil {
				httpErr = err
			}
		}
	}

	a.logger.Info("simulation_stopped")
	return httpErr
}

// Close disconnects every channel and releases the log file. Channel
// errors are reported per site and never abort the remaining teardown.
func (a *Application) Close() error {
	for _, sc := range a.channels {
		if err := sc.ch.Disconnect(); err != nil {
			a.logger.Warn("channel_disconnect_failed",
				slog.String("site", sc.site.Key), slog.Any("err", err))
			continue
		}
		a.met.Connected.WithLabelValues(sc.site.Key).Set(0)
		a.logger.Info("channel_disconnected", slog.String("site", sc.site.Key))
	}
	a.channels = nil

	if a.logFile == nil {
		return nil
	}
	if err := a.logFile.Close(); err != nil {
		return err
	}
	a.logFile = nil
	return nil
}
