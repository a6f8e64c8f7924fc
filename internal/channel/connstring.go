// v1
// internal/channel/connstring.go
package channel

import (
	"errors"
	"fmt"
	"strings"
)

// MQTTSettings carries the broker endpoint and credentials parsed from
// a site connection string of the form
// HostName=tcp://broker:1883;DeviceId=site;SharedAccessKey=secret.
// DeviceId and SharedAccessKey are optional for brokers that accept
// anonymous clients.
type MQTTSettings struct {
	BrokerURL string
	DeviceID  string
	AccessKey string
}

// KafkaSettings carries the bootstrap brokers and optional topic parsed
// from a site connection string of the form
// Brokers=kafka-1:9092,kafka-2:9092;Topic=telemetry.
type KafkaSettings struct {
	Brokers []string
	Topic   string
}

// ParseMQTTConnString validates and splits an MQTT connection string.
// Unknown fields are rejected so credential typos surface at startup
// instead of as silent authentication failures.
func ParseMQTTConnString(raw string) (MQTTSettings, error) {
	fields, err := splitConnString(raw)
	if err != nil {
		return MQTTSettings{}, err
	}
	var s MQTTSettings
	for key, value := range fields {
		switch key {
		case "HostName":
			s.BrokerURL = value
		case "DeviceId":
			s.DeviceID = value
		case "SharedAccessKey":
			s.AccessKey = value
		default:
			return MQTTSettings{}, fmt.Errorf("unknown connection string field %q", key)
		}
	}
	if s.BrokerURL == "" {
		return MQTTSettings{}, errors.New("connection string missing HostName")
	}
	if !strings.Contains(s.BrokerURL, "://") {
		s.BrokerURL = "tcp://" + s.BrokerURL
	}
	return s, nil
}

// ParseKafkaConnString validates and splits a Kafka connection string.
func ParseKafkaConnString(raw string) (KafkaSettings, error) {
	fields, err := splitConnString(raw)
	if err != nil {
		return KafkaSettings{}, err
	}
	var s KafkaSettings
	for key, value := range fields {
		switch key {
		case "Brokers":
			s.Brokers = splitAndTrim(value)
		case "Topic":
			s.Topic = value
		default:
			return KafkaSettings{}, fmt.Errorf("unknown connection string field %q", key)
		}
	}
	if len(s.Brokers) == 0 {
		return KafkaSettings{}, errors.New("connection string missing Brokers")
	}
	return s, nil
}

func splitConnString(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("connection string is empty")
	}
	fields := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return nil, fmt.Errorf("malformed connection string segment %q", part)
		}
		fields[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	if len(fields) == 0 {
		return nil, errors.New("connection string has no fields")
	}
	return fields, nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
