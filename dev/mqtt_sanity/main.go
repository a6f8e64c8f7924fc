// v0
// dev/mqtt_sanity/main.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nada0038/rideau-canal-sensor-simulation/internal/app"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/config"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/sensor"
)

// statusDocument mirrors the /status response shape for verification.
type statusDocument struct {
	Transport string       `json:"transport"`
	Sites     []siteStatus `json:"sites"`
}

type siteStatus struct {
	Site       string `json:"site"`
	State      string `json:"state"`
	Deliveries uint64 `json:"deliveries"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, file, err := buildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = file.Close()
	}()

	if err := run(ctx, logger); err != nil {
		logger.Error("mqtt_sanity_failed", slog.Any("err", err))
		os.Exit(1)
	}
	logger.Info("mqtt_sanity_complete")
}

// run boots the simulator against a local broker, watches the NAC
// topic from the subscriber side, and cross-checks /status and the
// simulator's own log before declaring the wire path healthy.
func run(ctx context.Context, logger *slog.Logger) error {
	broker := os.Getenv("MQTT_SANITY_BROKER")
	if broker == "" {
		broker = "localhost:1883"
	}
	const listenAddr = "127.0.0.1:8097"
	simulatorLog := filepath.Join("logs", "dev", "simulator-under-sanity.log")

	env := map[string]string{
		"NAC_CONNECTION_STRING": fmt.Sprintf("HostName=%s;DeviceId=sanity-nac;SharedAccessKey=dev-only", broker),
		"SIMULATOR_TRANSPORT":   "mqtt",
		"SEND_INTERVAL":         "1s",
		"TOPIC_PREFIX":          "sensors",
		"LISTEN_ADDR":           listenAddr,
		"LOG_FILE":              simulatorLog,
	}
	for k, v := range env {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}

	logOffset := fileSize(simulatorLog)

	messages, closeSub, err := subscribe(logger, broker, "sensors/nac")
	if err != nil {
		return err
	}
	defer closeSub()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sites, err := config.SelectSites(cfg, []string{"nac"})
	if err != nil {
		return fmt.Errorf("select sites: %w", err)
	}

	application, err := app.New(cfg, sites)
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(runCtx) }()

	if err := waitForHTTP(runCtx, logger, "http://"+listenAddr+"/health/ready", 30*time.Second, 2*time.Second); err != nil {
		return fmt.Errorf("simulator readiness: %w", err)
	}

	const wantReadings = 3
	if err := collectReadings(runCtx, logger, messages, wantReadings, 45*time.Second); err != nil {
		return err
	}

	if err := verifyStatus(runCtx, logger, "http://"+listenAddr+"/status", wantReadings); err != nil {
		return err
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			return fmt.Errorf("simulator run: %w", err)
		}
	case <-time.After(10 * time.Second):
		return errors.New("simulator did not stop after cancel")
	}
	if err := application.Close(); err != nil {
		return fmt.Errorf("close application: %w", err)
	}

	return ensureNoDeliveryWarnings(logger, simulatorLog, logOffset)
}

func subscribe(logger *slog.Logger, broker, topic string) (<-chan []byte, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + broker).
		SetClientID(fmt.Sprintf("sanity-subscriber-%s", uuid.NewString())).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, nil, errors.New("timeout connecting subscriber")
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("connect subscriber: %w", err)
	}

	messages := make(chan []byte, 16)
	subToken := client.Subscribe(topic, 1, func(_ mqtt.Client, m mqtt.Message) {
		select {
		case messages <- m.Payload():
		default:
		}
	})
	if !subToken.WaitTimeout(10 * time.Second) {
		client.Disconnect(250)
		return nil, nil, errors.New("timeout subscribing")
	}
	if err := subToken.Error(); err != nil {
		client.Disconnect(250)
		return nil, nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	logger.Info("subscriber_ready", slog.String("topic", topic))
	return messages, func() { client.Disconnect(250) }, nil
}

func waitForHTTP(ctx context.Context, logger *slog.Logger, url string, timeout, interval time.Duration) error {
	client := &http.Client{Timeout: 5 * time.Second}
	deadline := time.Now().Add(timeout)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return errors.New("timeout waiting for http endpoint")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			_ = resp.Body.Close()
			logger.Info("http_endpoint_ready", slog.String("url", url))
			return nil
		}
		if resp != nil {
			_ = resp.Body.Close()
		}

		logger.Info("http_endpoint_wait", slog.String("url", url))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func collectReadings(ctx context.Context, logger *slog.Logger, messages <-chan []byte, want int, timeout time.Duration) error {
	deadline := time.After(timeout)
	seen := 0
	for seen < want {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("received %d of %d readings before timeout", seen, want)
		case raw := <-messages:
			if err := verifyReading(raw); err != nil {
				return err
			}
			seen++
			logger.Info("reading_verified", slog.Int("count", seen))
		}
	}
	return nil
}

func verifyReading(raw []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if len(doc) != 3+len(sensor.Channels) {
		return fmt.Errorf("expected %d fields, got %d", 3+len(sensor.Channels), len(doc))
	}
	deviceID, _ := doc["deviceId"].(string)
	if deviceID != "nac" {
		return fmt.Errorf("unexpected deviceId %q", deviceID)
	}
	location, _ := doc["location"].(string)
	if location != "NAC" {
		return fmt.Errorf("unexpected location %q", location)
	}
	stamp, _ := doc["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339, stamp); err != nil {
		return fmt.Errorf("timestamp %q: %w", stamp, err)
	}
	for _, spec := range sensor.Channels {
		v, ok := doc[spec.Name].(float64)
		if !ok {
			return fmt.Errorf("channel %s missing or not numeric", spec.Name)
		}
		if v < spec.Min || v > spec.Max {
			return fmt.Errorf("channel %s out of range: %.2f", spec.Name, v)
		}
		if math.Abs(v*10-math.Round(v*10)) > 1e-9 {
			return fmt.Errorf("channel %s not quantized to one decimal: %v", spec.Name, v)
		}
	}
	return nil
}

func verifyStatus(ctx context.Context, logger *slog.Logger, url string, minDeliveries int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var doc statusDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	if doc.Transport != "mqtt" {
		return fmt.Errorf("unexpected transport %q", doc.Transport)
	}
	if len(doc.Sites) != 1 || doc.Sites[0].Site != "nac" {
		return fmt.Errorf("unexpected sites in status: %+v", doc.Sites)
	}
	site := doc.Sites[0]
	if site.State != "connected" {
		return fmt.Errorf("site state %q, want connected", site.State)
	}
	if site.Deliveries < uint64(minDeliveries) {
		return fmt.Errorf("status reports %d deliveries, want at least %d", site.Deliveries, minDeliveries)
	}
	logger.Info("status_verified", slog.Uint64("deliveries", site.Deliveries))
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// ensureNoDeliveryWarnings scans the part of the simulator log written
// during this run for delivery failure events.
func ensureNoDeliveryWarnings(logger *slog.Logger, path string, offset int64) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read simulator log: %w", err)
	}
	if offset > int64(len(raw)) {
		offset = 0
	}
	section := raw[offset:]
	for _, marker := range []string{"reconnect_failed", "delivery_failed", "encode_failed"} {
		if bytes.Contains(section, []byte(marker)) {
			return fmt.Errorf("found %q in simulator log", marker)
		}
	}
	logger.Info("simulator_log_clean", slog.String("path", path))
	return nil
}

func buildLogger() (*slog.Logger, *os.File, error) {
	path := filepath.Join("logs", "dev", "mqtt-sanity.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(os.Stdout, file), &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler)
	logger.Info("logger_initialized", slog.String("log_path", path))
	return logger, file, nil
}
