// v2
// internal/delivery/loop_test.go
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/nada0038/rideau-canal-sensor-simulation/internal/channel"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/config"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/metrics"
	"github.com/nada0038/rideau-canal-sensor-simulation/internal/sensor"
)

// stubChannel records call order and plays back scripted send results.
type stubChannel struct {
	mu         sync.Mutex
	connected  bool
	calls      []string
	connectErr error
	sendErrs   []error
}

func (s *stubChannel) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "connect")
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *stubChannel) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "disconnect")
	s.connected = false
	return nil
}

func (s *stubChannel) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *stubChannel) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "send")
	if len(s.sendErrs) == 0 {
		return nil
	}
	err := s.sendErrs[0]
	s.sendErrs = s.sendErrs[1:]
	return err
}

func (s *stubChannel) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func newTestLoop(ch channel.DeviceChannel, interval time.Duration) *Loop {
	site := config.Site{Key: "nac", Name: "NAC"}
	gen := sensor.NewGenerator(site.Key, site.Name, rand.New(rand.NewSource(7)))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(site, gen, ch, interval, logger, metrics.New())
}

func notConnectedErr() error {
	return fmt.Errorf("write to sensors.nac: %w", channel.ErrNotConnected)
}

func TestTickReconnectsBeforeSending(t *testing.T) {
	stub := &stubChannel{connected: false}
	loop := newTestLoop(stub, time.Second)

	loop.tick()

	calls := stub.callLog()
	expected := []string{"disconnect", "connect", "send"}
	if len(calls) != len(expected) {
		t.Fatalf("unexpected calls: %v", calls)
	}
	for i, want := range expected {
		if calls[i] != want {
			t.Fatalf("call %d: expected %q, got %q (all: %v)", i, want, calls[i], calls)
		}
	}

	snap := loop.Snapshot()
	if snap.State != StateConnected {
		t.Fatalf("unexpected state: %q", snap.State)
	}
	if snap.Deliveries != 1 {
		t.Fatalf("expected 1 delivery, got %d", snap.Deliveries)
	}
}

func TestTickAbandonsWhenReconnectFails(t *testing.T) {
	stub := &stubChannel{connected: false, connectErr: errors.New("broker unreachable")}
	loop := newTestLoop(stub, time.Second)

	loop.tick()

	for _, call := range stub.callLog() {
		if call == "send" {
			t.Fatalf("send must not run after a failed reconnect: %v", stub.callLog())
		}
	}
	snap := loop.Snapshot()
	if snap.State != StateFailedTick {
		t.Fatalf("unexpected state: %q", snap.State)
	}
	if snap.FailedTicks != 1 || snap.Deliveries != 0 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
}

func TestTickRetriesOnceOnLostConnection(t *testing.T) {
	stub := &stubChannel{connected: true, sendErrs: []error{notConnectedErr()}}
	loop := newTestLoop(stub, time.Second)

	loop.tick()

	calls := stub.callLog()
	expected := []string{"send", "connect", "send"}
	if len(calls) != len(expected) {
		t.Fatalf("unexpected calls: %v", calls)
	}
	for i, want := range expected {
		if calls[i] != want {
			t.Fatalf("call %d: expected %q, got %q (all: %v)", i, want, calls[i], calls)
		}
	}

	snap := loop.Snapshot()
	if snap.Deliveries != 1 || snap.FailedTicks != 0 {
		t.Fatalf("retry should have delivered: %+v", snap)
	}
}

func TestTickRetryFailureAbandonsTick(t *testing.T) {
	stub := &stubChannel{connected: true, sendErrs: []error{notConnectedErr(), notConnectedErr()}}
	loop := newTestLoop(stub, time.Second)

	loop.tick()

	calls := stub.callLog()
	sends, connects := 0, 0
	for _, call := range calls {
		switch call {
		case "send":
			sends++
		case "connect":
			connects++
		}
	}
	if sends != 2 || connects != 1 {
		t.Fatalf("expected exactly one retry, got %v", calls)
	}
	snap := loop.Snapshot()
	if snap.FailedTicks != 1 || snap.Deliveries != 0 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
}

func TestTickDoesNotRetryOtherErrors(t *testing.T) {
	stub := &stubChannel{connected: true, sendErrs: []error{
		errors.New("payload rejected"),
		errors.New("payload rejected"),
		errors.New("payload rejected"),
	}}
	loop := newTestLoop(stub, time.Second)

	for i := 0; i < 3; i++ {
		loop.tick()
	}

	calls := stub.callLog()
	for _, call := range calls {
		if call == "connect" {
			t.Fatalf("non-retryable errors must not trigger reconnects: %v", calls)
		}
	}
	if len(calls) != 3 {
		t.Fatalf("expected 3 sends, got %v", calls)
	}
	snap := loop.Snapshot()
	if snap.FailedTicks != 3 {
		t.Fatalf("expected 3 failed ticks, got %+v", snap)
	}

	// The loop keeps its cadence: the next tick delivers normally.
	loop.tick()
	snap = loop.Snapshot()
	if snap.Deliveries != 1 || snap.State != StateConnected {
		t.Fatalf("loop did not recover: %+v", snap)
	}
}

func TestRunFirstTickImmediateAndCancelDuringWait(t *testing.T) {
	stub := &stubChannel{connected: true}
	loop := newTestLoop(stub, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for loop.Snapshot().Deliveries == 0 {
		select {
		case <-deadline:
			t.Fatalf("first reading was not sent immediately")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop after cancellation")
	}

	if state := loop.Snapshot().State; state != StateStopped {
		t.Fatalf("unexpected final state: %q", state)
	}
}

func TestRunHoldsCadence(t *testing.T) {
	stub := &stubChannel{connected: true}
	loop := newTestLoop(stub, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for loop.Snapshot().Deliveries < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 deliveries, got %d", loop.Snapshot().Deliveries)
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop after cancellation")
	}

	snap := loop.Snapshot()
	if snap.LastReading == nil || snap.LastReading.DeviceID != "nac" {
		t.Fatalf("snapshot missing last reading: %+v", snap)
	}
	if snap.LastSentAt == "" {
		t.Fatalf("snapshot missing last sent time")
	}
}
