// v3
// internal/delivery/loop.go

// Package delivery runs the per-site publishing loop: generate a
// reading, recover the channel when needed, send, wait out the
// interval.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/nada0038/rideau-canal-sensor-simulation/internal/channel"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/config"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/metrics"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/sensor"
)

// State labels the loop's position in its lifecycle for the status API.
type State string

const (
	StateIdle         State = "idle"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailedTick   State = "failed-tick"
	StateStopped      State = "stopped"
)

// Snapshot is the status API's view of one loop.
type Snapshot struct {
	Site        string          `json:"site"`
	Location    string          `json:"location"`
	State       State           `json:"state"`
	LastReading *sensor.Reading `json:"lastReading,omitempty"`
	LastSentAt  string          `json:"lastSentAt,omitempty"`
	Deliveries  uint64          `json:"deliveries"`
	FailedTicks uint64          `json:"failedTicks"`
}

// Loop owns one site's generator, channel, and cadence. Errors inside a
// tick are logged, counted, and abandoned; only context cancellation
// stops the loop.
type Loop struct {
	site     config.Site
	gen      *sensor.Generator
	ch       channel.DeviceChannel
	interval time.Duration
	log      *slog.Logger
	met      *metrics.Metrics

	mu          sync.Mutex
	state       State
	lastReading *sensor.Reading
	lastSentAt  time.Time
	deliveries  uint64
	failedTicks uint64
}

// New assembles a loop. The channel is expected to hold its initial
// connection already; the loop takes over recovery from there.
func New(site config.Site, gen *sensor.Generator, ch channel.DeviceChannel, interval time.Duration, log *slog.Logger, met *metrics.Metrics) *Loop {
	return &Loop{
		site:     site,
		gen:      gen,
		ch:       ch,
		interval: interval,
		log:      log.With(slog.String("site", site.Key)),
		met:      met,
		state:    StateIdle,
	}
}

// Run publishes on a fixed cadence until ctx is cancelled. The first
// reading goes out immediately; the interval wait is the loop's only
// suspension point, so cancellation takes effect within one period.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			l.setState(StateStopped)
			l.log.Info("loop_stopped")
			return
		}
		l.tick()
		select {
		case <-ctx.Done():
			l.setState(StateStopped)
			l.log.Info("loop_stopped")
			return
		case <-ticker.C:
		}
	}
}

// tick performs one generate-and-deliver cycle. The cadence holds no
// matter how the cycle ends.
func (l *Loop) tick() {
	reading := l.gen.Next()
	l.met.ReadingsGenerated.WithLabelValues(l.site.Key).Inc()

	if !l.ch.IsConnected() {
		l.setState(StateReconnecting)
		l.met.Reconnects.WithLabelValues(l.site.Key).Inc()
		l.met.Connected.WithLabelValues(l.site.Key).Set(0)
		l.log.Warn("channel_down_reconnecting")
		// Tear down any half-open session before dialing again.
		_ = l.ch.Disconnect()
		if err := l.ch.Connect(); err != nil {
			l.failTick(metrics.ReasonConnect, "reconnect_failed", err)
			return
		}
		l.log.Info("channel_reconnected")
	}

	payload, err := json.Marshal(reading)
	if err != nil {
		l.failTick(metrics.ReasonEncode, "encode_failed", err)
		return
	}

	if err := l.ch.Send(payload); err != nil {
		if !errors.Is(err, channel.ErrNotConnected) {
			l.failTick(metrics.ReasonSend, "delivery_failed", err)
			return
		}
		l.log.Warn("send_lost_connection", slog.Any("err", err))
		l.met.Reconnects.WithLabelValues(l.site.Key).Inc()
		if err := l.ch.Connect(); err != nil {
			l.failTick(metrics.ReasonConnect, "retry_connect_failed", err)
			return
		}
		if err := l.ch.Send(payload); err != nil {
			l.failTick(metrics.ReasonSend, "retry_send_failed", err)
			return
		}
	}

	l.recordDelivery(reading)
}

func (l *Loop) recordDelivery(reading sensor.Reading) {
	l.met.Deliveries.WithLabelValues(l.site.Key).Inc()
	l.met.Connected.WithLabelValues(l.site.Key).Set(1)

	l.mu.Lock()
	l.state = StateConnected
	l.lastReading = &reading
	l.lastSentAt = time.Now().UTC()
	l.deliveries++
	l.mu.Unlock()

	l.log.Info("reading_delivered",
		slog.Float64("iceThickness", float64(reading.IceThickness)),
		slog.Float64("surfaceTemperature", float64(reading.SurfaceTemperature)),
		slog.Float64("snowAccumulation", float64(reading.SnowAccumulation)),
		slog.Float64("externalTemperature", float64(reading.ExternalTemperature)),
	)
}

func (l *Loop) failTick(reason, event string, err error) {
	l.met.DeliveryFailures.WithLabelValues(l.site.Key, reason).Inc()

	l.mu.Lock()
	l.state = StateFailedTick
	l.failedTicks++
	l.mu.Unlock()

	l.log.Warn(event, slog.Any("err", err))
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Snapshot returns a consistent copy of the loop's externally visible
// state.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := Snapshot{
		Site:        l.site.Key,
		Location:    l.site.Name,
		State:       l.state,
		Deliveries:  l.deliveries,
		FailedTicks: l.failedTicks,
	}
	if l.lastReading != nil {
		reading := *l.lastReading
		snap.LastReading = &reading
	}
	if !l.lastSentAt.IsZero() {
		snap.LastSentAt = l.lastSentAt.Format(time.RFC3339)
	}
	return snap
}
