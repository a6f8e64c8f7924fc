// v2
// internal/channel/kafka.go
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"log/slog"

	"github.com/segmentio/kafka-go"
)

const (
	kafkaDialTimeout  = 10 * time.Second
	kafkaWriteTimeout = 10 * time.Second
)

// Kafka delivers payloads to a Kafka topic, one instance per site.
// Messages are keyed by site key so partition assignment preserves
// per-site ordering downstream.
type Kafka struct {
	settings KafkaSettings
	siteKey  string
	topic    string
	log      *slog.Logger

	mu        sync.Mutex
	writer    *kafka.Writer
	connected bool
}

// NewKafka builds the channel for one site. When the connection string
// names no topic the channel writes to <topicPrefix>.<siteKey>.
func NewKafka(settings KafkaSettings, topicPrefix, siteKey string, log *slog.Logger) *Kafka {
	topic := settings.Topic
	if topic == "" {
		topic = topicPrefix + "." + siteKey
	}
	return &Kafka{settings: settings, siteKey: siteKey, topic: topic, log: log}
}

// Connect verifies that a bootstrap broker is reachable and prepares
// the writer. The dial is required because constructing a writer alone
// never touches the network.
func (c *Kafka) Connect() error {
	ctx, cancel := context.WithTimeout(context.Background(), kafkaDialTimeout)
	defer cancel()

	var lastErr error
	reachable := false
	for _, broker := range c.settings.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			c.log.Warn("kafka_broker_dial_failed", slog.String("broker", broker), slog.Any("err", err))
			continue
		}
		_ = conn.Close()
		reachable = true
		break
	}
	if !reachable {
		return fmt.Errorf("dial kafka brokers: %w", lastErr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		c.writer = &kafka.Writer{
			Addr:                   kafka.TCP(c.settings.Brokers...),
			Topic:                  c.topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		}
	}
	c.connected = true
	c.log.Info("kafka_connected", slog.String("topic", c.topic))
	return nil
}

// Disconnect closes the writer and releases its broker connections.
func (c *Kafka) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.writer == nil {
		return nil
	}
	w := c.writer
	c.writer = nil
	if err := w.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// IsConnected reports whether the last broker interaction succeeded.
func (c *Kafka) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.writer != nil
}

// Send writes one message keyed by site. Transport-level failures mark
// the channel disconnected and surface as ErrNotConnected; broker-side
// rejections pass through untagged.
func (c *Kafka) Send(payload []byte) error {
	c.mu.Lock()
	w := c.writer
	up := c.connected
	c.mu.Unlock()
	if w == nil || !up {
		return fmt.Errorf("write to %s: %w", c.topic, ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()
	err := w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(c.siteKey),
		Value: payload,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		if isConnectionLost(err) {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			return fmt.Errorf("write to %s: %w", c.topic, ErrNotConnected)
		}
		return fmt.Errorf("write to %s: %w", c.topic, err)
	}
	return nil
}

func isConnectionLost(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded)
}
