// v1
// internal/http/status.go
package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/nada0038/rideau-canal-sensor-simulation/internal/delivery"
)

// statusResponse is the document served by /status.
type statusResponse struct {
	GeneratedAt string              `json:"generatedAt"`
	Transport   string              `json:"transport"`
	Sites       []delivery.Snapshot `json:"sites"`
}

// statusHandler renders the live per-site loop snapshots. The source
// reads each loop under its own lock, so the response is consistent
// per site without pausing delivery.
func statusHandler(logger *slog.Logger, source StatusSource, transport string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		sites := source.Snapshots()
		if sites == nil {
			sites = []delivery.Snapshot{}
		}
		resp := statusResponse{
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			Transport:   transport,
			Sites:       sites,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("status_encode_failed", slog.Any("err", err))
		}
	}
}
