// v0
// internal/http/health.go
package httpserver

import "sync"

// HealthState tracks readiness for the status API. Liveness is always
// true while the process runs; readiness flips once the delivery loops
// are started and back off again during shutdown.
type HealthState struct {
	mu    sync.RWMutex
	ready bool
}

// NewHealthState constructs the tracker with readiness set to false so
// upstream probes can tell when the simulator is actually publishing.
func NewHealthState() *HealthState {
	return &HealthState{}
}

// SetReady flips the readiness flag to the provided value.
func (h *HealthState) SetReady(value bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = value
}

// Ready exposes the current readiness flag in a thread-safe manner.
func (h *HealthState) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}
