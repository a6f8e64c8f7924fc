// v2
// internal/config/config.go

// Package config resolves runtime settings for the sensor simulator by
// layering defaults, an optional properties file, and environment
// variables.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Transport identifiers accepted for the delivery channel.
const (
	TransportMQTT  = "mqtt"
	TransportKafka = "kafka"
)

// Site is one physical sensor installation along the skateway.
type Site struct {
	// Key is the stable identifier carried as deviceId on the wire and
	// used to derive the credential variable name.
	Key string
	// Name is the operator-facing location label.
	Name string
}

// EnvVar returns the environment variable expected to carry the site's
// delivery connection string, e.g. DOWS_LAKE_CONNECTION_STRING.
func (s Site) EnvVar() string {
	return strings.ToUpper(strings.ReplaceAll(s.Key, "-", "_")) + "_CONNECTION_STRING"
}

// ConnectionString resolves the site credential from the environment.
// A variable that is unset or blank reports false so callers can skip
// the site with a warning instead of failing the whole run.
func (s Site) ConnectionString() (string, bool) {
	v := strings.TrimSpace(os.Getenv(s.EnvVar()))
	if v == "" {
		return "", false
	}
	return v, true
}

// Config captures all runtime settings required by the simulator.
// Values can be provided by environment variables, a properties file,
// or fall back to defaults so the simulator can boot with nothing but
// per-site credentials.
type Config struct {
	// SendInterval is the fixed pause between consecutive readings of a
	// site.
	SendInterval time.Duration
	// Transport selects the delivery implementation, mqtt or kafka.
	Transport string
	// TopicPrefix prefixes the per-site topic on the chosen transport.
	TopicPrefix string
	// ListenAddress defines the TCP address used by the status HTTP
	// server.
	ListenAddress string
	// LogFilePath is the path of the append-only service log.
	LogFilePath string
	// ShutdownTimeout limits graceful HTTP shutdown attempts.
	ShutdownTimeout time.Duration
	// PropertiesPath records the path used to load property values.
	PropertiesPath string
	// Sites lists every configured installation in boot order.
	Sites []Site
}

const (
	defaultSendInterval = 10 * time.Second
	defaultTransport    = TransportMQTT
	defaultTopicPrefix  = "sensors"
	defaultListenAddr   = ":8095"
	defaultLogFile      = "logs/sensor-simulator.log"
	defaultShutdown     = 5 * time.Second
	defaultPropsPath    = "simulator.properties"
)

func defaultSites() []Site {
	return []Site{
		{Key: "dows-lake", Name: "Dow's Lake"},
		{Key: "fifth-avenue", Name: "Fifth Avenue"},
		{Key: "nac", Name: "NAC"},
	}
}

// Load resolves configuration by layering defaults, an optional
// properties file, and finally environment variables. The properties
// file location can be overridden with SIMULATOR_PROPERTIES_PATH.
func Load() (Config, error) {
	cfg := Config{
		SendInterval:    defaultSendInterval,
		Transport:       defaultTransport,
		TopicPrefix:     defaultTopicPrefix,
		ListenAddress:   defaultListenAddr,
		LogFilePath:     filepath.Clean(defaultLogFile),
		ShutdownTimeout: defaultShutdown,
		Sites:           defaultSites(),
	}

	propsPath := strings.TrimSpace(os.Getenv("SIMULATOR_PROPERTIES_PATH"))
	if propsPath == "" {
		propsPath = defaultPropsPath
	}
	cfg.PropertiesPath = propsPath

	if err := applyProperties(&cfg, propsPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SiteByKey looks up a configured site by its stable key.
func (c Config) SiteByKey(key string) (Site, bool) {
	for _, site := range c.Sites {
		if site.Key == key {
			return site, true
		}
	}
	return Site{}, false
}

// SiteKeys returns the configured site keys in boot order.
func (c Config) SiteKeys() []string {
	keys := make([]string, 0, len(c.Sites))
	for _, site := range c.Sites {
		keys = append(keys, site.Key)
	}
	return keys
}

// SelectSites resolves a command line site selection against the
// configured table. No arguments selects every site; a single site can
// be requested as <key>, --<key>, --location=<key>, or --location <key>.
// Unknown keys fail with the available choices listed.
func SelectSites(cfg Config, args []string) ([]Site, error) {
	if len(args) == 0 {
		return cfg.Sites, nil
	}

	var key string
	switch {
	case args[0] == "--location" && len(args) == 2:
		key = args[1]
	case strings.HasPrefix(args[0], "--location=") && len(args) == 1:
		key = strings.TrimPrefix(args[0], "--location=")
	case len(args) == 1:
		key = strings.TrimPrefix(args[0], "--")
	default:
		return nil, errors.New("usage: sensor-simulator [--location=<site>]")
	}

	key = strings.ToLower(strings.TrimSpace(key))
	if site, ok := cfg.SiteByKey(key); ok {
		return []Site{site}, nil
	}
	return nil, fmt.Errorf("unknown site %q, available: %s", key, strings.Join(cfg.SiteKeys(), ", "))
}

func applyProperties(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		// Close errors are ignored because loading has already finished
		// and no logger exists at this stage of initialization.
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, ";") {
			continue
		}
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid properties entry on line %d", line)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if err := setProperty(cfg, key, value); err != nil {
			return fmt.Errorf("property %s: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read properties: %w", err)
	}
	return nil
}

func setProperty(cfg *Config, key, value string) error {
	switch key {
	case "send_interval":
		d, err := parseInterval(value)
		if err != nil {
			return err
		}
		cfg.SendInterval = d
	case "transport":
		cfg.Transport = strings.ToLower(value)
	case "topic_prefix":
		if value == "" {
			return errors.New("topic_prefix cannot be empty")
		}
		cfg.TopicPrefix = value
	case "listen_address":
		if value == "" {
			return errors.New("listen_address cannot be empty")
		}
		cfg.ListenAddress = value
	case "log_path":
		if value == "" {
			return errors.New("log_path cannot be empty")
		}
		cfg.LogFilePath = filepath.Clean(value)
	case "shutdown_timeout_ms":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid shutdown_timeout_ms: %w", err)
		}
		if ms <= 0 {
			return errors.New("shutdown_timeout_ms must be positive")
		}
		cfg.ShutdownTimeout = time.Duration(ms) * time.Millisecond
	default:
		if siteKey, ok := sitePropertyKey(key); ok {
			return upsertSite(cfg, siteKey, value)
		}
		// Unknown keys are ignored to keep the loader forward-compatible.
	}
	return nil
}

// sitePropertyKey recognizes site.<key>.name entries, which add a new
// site or rename an existing one.
func sitePropertyKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "site.") || !strings.HasSuffix(key, ".name") {
		return "", false
	}
	siteKey := strings.TrimSuffix(strings.TrimPrefix(key, "site."), ".name")
	return siteKey, siteKey != ""
}

func upsertSite(cfg *Config, key, name string) error {
	if !validSiteKey(key) {
		return fmt.Errorf("invalid site key %q", key)
	}
	if name == "" {
		return fmt.Errorf("site %s name cannot be empty", key)
	}
	for i := range cfg.Sites {
		if cfg.Sites[i].Key == key {
			cfg.Sites[i].Name = name
			return nil
		}
	}
	cfg.Sites = append(cfg.Sites, Site{Key: key, Name: name})
	return nil
}

// validSiteKey enforces lowercase letters, digits, and interior hyphens
// so keys map cleanly onto credential variable names.
func validSiteKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "-") || strings.HasSuffix(key, "-") {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

func applyEnv(cfg *Config) error {
	if v, ok := lookupEnvTrimmed("SEND_INTERVAL"); ok {
		d, err := parseInterval(v)
		if err != nil {
			return fmt.Errorf("SEND_INTERVAL: %w", err)
		}
		cfg.SendInterval = d
	}
	if v, ok := lookupEnvTrimmed("SIMULATOR_TRANSPORT"); ok {
		if v == "" {
			return errors.New("SIMULATOR_TRANSPORT cannot be empty")
		}
		cfg.Transport = strings.ToLower(v)
	}
	if v, ok := lookupEnvTrimmed("TOPIC_PREFIX"); ok {
		if v == "" {
			return errors.New("TOPIC_PREFIX cannot be empty")
		}
		cfg.TopicPrefix = v
	}
	if v, ok := lookupEnvTrimmed("LISTEN_ADDR"); ok {
		if v == "" {
			return errors.New("LISTEN_ADDR cannot be empty")
		}
		cfg.ListenAddress = v
	}
	if v, ok := lookupEnvTrimmed("LOG_FILE"); ok {
		if v == "" {
			return errors.New("LOG_FILE cannot be empty")
		}
		cfg.LogFilePath = filepath.Clean(v)
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.SendInterval <= 0 {
		return errors.New("send interval must be positive")
	}
	if cfg.Transport != TransportMQTT && cfg.Transport != TransportKafka {
		return fmt.Errorf("unsupported transport %q, expected %s or %s", cfg.Transport, TransportMQTT, TransportKafka)
	}
	if len(cfg.Sites) == 0 {
		return errors.New("no sites configured")
	}
	return nil
}

func lookupEnvTrimmed(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// parseInterval accepts either a Go duration such as 10s or a bare
// integer meaning seconds.
func parseInterval(v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return 0, errors.New("interval cannot be empty")
	}
	if d, err := time.ParseDuration(v); err == nil {
		if d <= 0 {
			return 0, errors.New("interval must be positive")
		}
		return d, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", v)
	}
	if secs <= 0 {
		return 0, errors.New("interval must be positive")
	}
	return time.Duration(secs) * time.Second, nil
}
