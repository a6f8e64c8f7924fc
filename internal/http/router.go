// v1
// internal/http/router.go

// Package httpserver exposes the simulator's operational surface:
// liveness, readiness, per-site delivery status, and Prometheus
// metrics.
package httpserver

import (
	"net/http"
	"os"

	"log/slog"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/nada0038/rideau-canal-sensor-simulation/internal/delivery"
)

// StatusSource provides the per-site loop snapshots rendered by the
// status endpoint.
type StatusSource interface {
	Snapshots() []delivery.Snapshot
}

// NewRouter wires all HTTP routes exposed by the simulator. Access
// logs go to stdout in Apache combined format; structured service logs
// stay on the slog logger.
func NewRouter(logger *slog.Logger, health *HealthState, source StatusSource, metricsHandler http.Handler, transport string) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", healthLiveHandler()).Methods("GET")
	r.HandleFunc("/health/ready", healthReadyHandler(health)).Methods("GET")
	r.HandleFunc("/status", statusHandler(logger, source, transport)).Methods("GET")
	r.Handle("/metrics", metricsHandler).Methods("GET")
	return handlers.LoggingHandler(os.Stdout, r)
}

func healthLiveHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func healthReadyHandler(health *HealthState) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !health.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
