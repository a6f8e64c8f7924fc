// v2
// cmd/sensor-simulator/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nada0038/rideau-canal-sensor-simulation/internal/app"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/config"
)

func main() {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		bootstrap.Error("config_load_failed", slog.Any("err", err))
		os.Exit(1)
	}

	sites, err := config.SelectSites(cfg, os.Args[1:])
	if err != nil {
		bootstrap.Error("site_selection_failed", slog.Any("err", err))
		os.Exit(1)
	}

	application, err := app.New(cfg, sites)
	if err != nil {
		bootstrap.Error("app_init_failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if cerr := application.Close(); cerr != nil {
			bootstrap.Error("app_close_failed", slog.Any("err", cerr))
		}
	}()

	logger := application.Logger()
	logger.Info("service_boot",
		slog.String("transport", cfg.Transport),
		slog.String("send_interval", cfg.SendInterval.String()),
		slog.String("listen_address", cfg.ListenAddress),
		slog.String("log_path", cfg.LogFilePath),
		slog.String("properties_path", cfg.PropertiesPath),
		slog.String("sites", strings.Join(siteKeys(application.Sites()), ",")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		logger.Error("service_terminated", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("service_stopped")
}

func siteKeys(sites []config.Site) []string {
	keys := make([]string, 0, len(sites))
	for _, s := range sites {
		keys = append(keys, s.Key)
	}
	return keys
}
