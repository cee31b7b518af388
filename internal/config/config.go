// Package config loads the ingest and API configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gcn_parser/internal/notify"
	"gcn_parser/internal/storage"
)

// Config is the top-level configuration file.
type Config struct {
	NATS    NATSConfig    `yaml:"nats"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Storage StorageConfig `yaml:"storage"`
	State   StateConfig   `yaml:"state"`
	MQTT    notify.Config `yaml:"mqtt"`
	API     APIConfig     `yaml:"api"`
	Log     LogConfig     `yaml:"log"`
}

// NATSConfig holds the message bus settings.
type NATSConfig struct {
	URL              string   `yaml:"url"`
	Name             string   `yaml:"name"`
	QueueGroup       string   `yaml:"queue_group"`       // empty = every instance gets every message
	Subjects         []string `yaml:"subjects"`          // empty = all GCN streams
	IncludeHeartbeat bool     `yaml:"include_heartbeat"` // also subscribe to gcn.heartbeat
}

// IngestConfig controls the worker pool and write batching.
type IngestConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	BatchSize       int           `yaml:"batch_size"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	StoreHeartbeats bool          `yaml:"store_heartbeats"`
}

// StorageConfig enables and configures the databases.
type StorageConfig struct {
	Enabled        bool `yaml:"enabled"`
	storage.Config `yaml:",inline"`
}

// StateConfig configures the local trigger tracker.
type StateConfig struct {
	Path string `yaml:"path"` // SQLite file; empty = in memory
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	Listen      string   `yaml:"listen"`
	AuthEnabled bool     `yaml:"auth_enabled"`
	APIKeys     []string `yaml:"api_keys"`
	Metrics     bool     `yaml:"metrics"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:  "nats://localhost:4222",
			Name: "gcn_parser",
		},
		Ingest: IngestConfig{
			Workers:       4,
			QueueSize:     1024,
			BatchSize:     500,
			FlushInterval: 2 * time.Second,
		},
		Storage: StorageConfig{
			Config: storage.DefaultConfig(),
		},
		MQTT: notify.Config{
			Broker:      "tcp://localhost:1883",
			TopicPrefix: "gcn",
			QoS:         1,
		},
		API: APIConfig{
			Listen:  ":8080",
			Metrics: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides. An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() {
	c.NATS.URL = envOrDefault("NATS_URL", c.NATS.URL)

	ch := &c.Storage.ClickHouse
	ch.Host = envOrDefault("CLICKHOUSE_HOST", ch.Host)
	ch.Port = envOrDefaultInt("CLICKHOUSE_PORT", ch.Port)
	ch.Database = envOrDefault("CLICKHOUSE_DATABASE", ch.Database)
	ch.User = envOrDefault("CLICKHOUSE_USER", ch.User)
	ch.Password = envOrDefault("CLICKHOUSE_PASSWORD", ch.Password)

	pg := &c.Storage.Postgres
	pg.Host = envOrDefault("POSTGRES_HOST", pg.Host)
	pg.Port = envOrDefaultInt("POSTGRES_PORT", pg.Port)
	pg.Database = envOrDefault("POSTGRES_DATABASE", pg.Database)
	pg.User = envOrDefault("POSTGRES_USER", pg.User)
	pg.Password = envOrDefault("POSTGRES_PASSWORD", pg.Password)

	c.MQTT.Broker = envOrDefault("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Username = envOrDefault("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = envOrDefault("MQTT_PASSWORD", c.MQTT.Password)

	c.State.Path = envOrDefault("GCN_STATE_PATH", c.State.Path)
	c.API.Listen = envOrDefault("GCN_API_LISTEN", c.API.Listen)
	if keys := os.Getenv("GCN_API_KEYS"); keys != "" {
		c.API.APIKeys = SplitList(keys)
		c.API.AuthEnabled = true
	}
	c.Log.Level = envOrDefault("GCN_LOG_LEVEL", c.Log.Level)
}

// Validate checks the configuration for values the services cannot run with.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1")
	}
	if c.Ingest.QueueSize < 1 {
		return fmt.Errorf("ingest.queue_size must be at least 1")
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest.batch_size must be at least 1")
	}
	if c.Ingest.FlushInterval <= 0 {
		return fmt.Errorf("ingest.flush_interval must be positive")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if c.API.AuthEnabled && len(c.API.APIKeys) == 0 {
		return fmt.Errorf("api.api_keys is required when auth is enabled")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

// SplitList splits a comma-separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
