// v1
// internal/http/router_test.go
package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"log/slog"

	"github.com/nada0038/rideau-canal-sensor-simulation/internal/delivery"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/metrics"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/sensor"
)

type stubSource struct {
	snaps []delivery.Snapshot
}

func (s *stubSource) Snapshots() []delivery.Snapshot {
	return s.snaps
}

func newTestRouter(health *HealthState, source StatusSource) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	met := metrics.New()
	met.ReadingsGenerated.WithLabelValues("nac").Inc()
	return NewRouter(logger, health, source, met.Handler(), "mqtt")
}

func TestHealthEndpoints(t *testing.T) {
	health := NewHealthState()
	srv := httptest.NewServer(newTestRouter(health, &stubSource{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("liveness expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("readiness request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readiness before start expected 503, got %d", resp.StatusCode)
	}

	health.SetReady(true)
	resp, err = http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("readiness request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readiness after start expected 200, got %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	reading := sensor.Reading{
		DeviceID:            "nac",
		Location:            "NAC",
		Timestamp:           "2025-01-15T18:00:00Z",
		IceThickness:        27.4,
		SurfaceTemperature:  -3.2,
		SnowAccumulation:    4.5,
		ExternalTemperature: -6.8,
	}
	source := &stubSource{snaps: []delivery.Snapshot{
		{Site: "dows-lake", Location: "Dow's Lake", State: delivery.StateConnected, Deliveries: 12},
		{Site: "nac", Location: "NAC", State: delivery.StateFailedTick, FailedTicks: 2, LastReading: &reading},
	}}
	srv := httptest.NewServer(newTestRouter(NewHealthState(), source))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type: %q", ct)
	}

	var decoded struct {
		GeneratedAt string              `json:"generatedAt"`
		Transport   string              `json:"transport"`
		Sites       []delivery.Snapshot `json:"sites"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if decoded.Transport != "mqtt" {
		t.Fatalf("unexpected transport: %q", decoded.Transport)
	}
	if len(decoded.Sites) != 2 {
		t.Fatalf("expected 2 sites, got %+v", decoded.Sites)
	}
	if decoded.Sites[1].LastReading == nil || decoded.Sites[1].LastReading.DeviceID != "nac" {
		t.Fatalf("last reading not carried through: %+v", decoded.Sites[1])
	}
	if decoded.Sites[0].State != delivery.StateConnected {
		t.Fatalf("unexpected state: %q", decoded.Sites[0].State)
	}
}

func TestStatusRejectsNonGET(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(NewHealthState(), &stubSource{}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpointRendersCollectors(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(NewHealthState(), &stubSource{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	if !strings.Contains(string(body), "sensor_readings_generated_total") {
		t.Fatalf("metrics output missing readings counter:\n%s", body)
	}
}
