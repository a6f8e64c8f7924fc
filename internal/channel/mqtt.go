// v2
// internal/channel/mqtt.go
package channel

import (
	"errors"
	"fmt"
	"time"

	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	mqttOpTimeout = 10 * time.Second
	mqttQoS       = 1
)

// MQTT delivers payloads to an MQTT broker, one instance per site. The
// paho client runs with auto-reconnect disabled so the delivery loop
// stays the sole owner of connection recovery.
type MQTT struct {
	client  mqtt.Client
	broker  string
	topic   string
	timeout time.Duration
	log     *slog.Logger
}

// NewMQTT builds the channel for one site. The publish topic is
// <topicPrefix>/<siteKey> and the client identifier carries a random
// suffix so a restarted simulator never collides with its previous
// session on the broker.
func NewMQTT(settings MQTTSettings, topicPrefix, siteKey string, log *slog.Logger) *MQTT {
	identity := settings.DeviceID
	if identity == "" {
		identity = siteKey
	}
	opts := mqtt.NewClientOptions().
		AddBroker(settings.BrokerURL).
		SetClientID(fmt.Sprintf("%s-%s", identity, uuid.NewString())).
		SetConnectTimeout(mqttOpTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false)
	if settings.DeviceID != "" {
		opts.SetUsername(settings.DeviceID)
	}
	if settings.AccessKey != "" {
		opts.SetPassword(settings.AccessKey)
	}
	return &MQTT{
		client:  mqtt.NewClient(opts),
		broker:  settings.BrokerURL,
		topic:   topicPrefix + "/" + siteKey,
		timeout: mqttOpTimeout,
		log:     log,
	}
}

// Connect establishes the broker session, blocking up to the operation
// timeout.
func (c *MQTT) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("connect to %s: timeout after %s", c.broker, c.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", c.broker, err)
	}
	c.log.Info("mqtt_connected", slog.String("broker", c.broker), slog.String("topic", c.topic))
	return nil
}

// Disconnect closes the session, allowing a short drain for in-flight
// publishes.
func (c *MQTT) Disconnect() error {
	c.client.Disconnect(250)
	return nil
}

// IsConnected reports whether the network session is currently open.
func (c *MQTT) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Send publishes one payload at QoS 1. A lost connection surfaces as
// ErrNotConnected so the caller can reconnect and retry.
func (c *MQTT) Send(payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("publish to %s: %w", c.topic, ErrNotConnected)
	}
	token := c.client.Publish(c.topic, mqttQoS, false, payload)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("publish to %s: timeout after %s", c.topic, c.timeout)
	}
	if err := token.Error(); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			return fmt.Errorf("publish to %s: %w", c.topic, ErrNotConnected)
		}
		return fmt.Errorf("publish to %s: %w", c.topic, err)
	}
	return nil
}
