// v0
// internal/channel/channel.go

// Package channel defines the delivery transport used by the simulator
// and its MQTT and Kafka implementations.
package channel

import "errors"

// ErrNotConnected tags delivery failures caused by a missing or lost
// connection. Callers may reconnect and retry exactly once; any other
// send error is final for the tick that produced it.
var ErrNotConnected = errors.New("channel not connected")

// DeviceChannel is the transport for one site's telemetry. Connect and
// Disconnect are idempotent. IsConnected reports false whenever the
// implementation cannot verify the link; it never returns an error.
type DeviceChannel interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
	Send(payload []byte) error
}
