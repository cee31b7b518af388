package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gcn.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ingest.Workers != 4 || cfg.Ingest.FlushInterval != 2*time.Second {
		t.Errorf("ingest defaults = %+v", cfg.Ingest)
	}
	if cfg.Storage.ClickHouse.Port != 9000 || cfg.Storage.Postgres.Database != "gcn_state" {
		t.Errorf("storage defaults = %+v", cfg.Storage)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
nats:
  url: nats://bus:4222
  queue_group: gcn-ingest
  include_heartbeat: true
ingest:
  workers: 8
  flush_interval: 500ms
storage:
  enabled: true
  clickhouse:
    host: ch
  postgres:
    host: pg
    port: 6543
mqtt:
  enabled: true
  topic_prefix: alerts
api:
  listen: ":9090"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.NATS.URL != "nats://bus:4222" || cfg.NATS.QueueGroup != "gcn-ingest" || !cfg.NATS.IncludeHeartbeat {
		t.Errorf("nats = %+v", cfg.NATS)
	}
	if cfg.Ingest.Workers != 8 || cfg.Ingest.FlushInterval != 500*time.Millisecond {
		t.Errorf("ingest = %+v", cfg.Ingest)
	}
	// Unset keys keep their defaults.
	if cfg.Ingest.BatchSize != 500 {
		t.Errorf("BatchSize = %d, want default 500", cfg.Ingest.BatchSize)
	}
	if !cfg.Storage.Enabled || cfg.Storage.ClickHouse.Host != "ch" || cfg.Storage.ClickHouse.Port != 9000 {
		t.Errorf("clickhouse = %+v", cfg.Storage.ClickHouse)
	}
	if cfg.Storage.Postgres.Host != "pg" || cfg.Storage.Postgres.Port != 6543 {
		t.Errorf("postgres = %+v", cfg.Storage.Postgres)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.TopicPrefix != "alerts" || cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
	if cfg.API.Listen != ":9090" {
		t.Errorf("api.listen = %q", cfg.API.Listen)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NATS_URL", "nats://env:4222")
	t.Setenv("POSTGRES_PORT", "7777")
	t.Setenv("POSTGRES_PORT_IGNORED", "x")
	t.Setenv("GCN_API_KEYS", "k1, k2,,")

	cfg, err := Load(writeConfig(t, "nats:\n  url: nats://file:4222\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NATS.URL != "nats://env:4222" {
		t.Errorf("NATS.URL = %q, env should win", cfg.NATS.URL)
	}
	if cfg.Storage.Postgres.Port != 7777 {
		t.Errorf("Postgres.Port = %d", cfg.Storage.Postgres.Port)
	}
	if !cfg.API.AuthEnabled || len(cfg.API.APIKeys) != 2 || cfg.API.APIKeys[1] != "k2" {
		t.Errorf("api = %+v", cfg.API)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"no nats url", func(c *Config) { c.NATS.URL = "" }, "nats.url"},
		{"no workers", func(c *Config) { c.Ingest.Workers = 0 }, "ingest.workers"},
		{"no flush interval", func(c *Config) { c.Ingest.FlushInterval = 0 }, "flush_interval"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" }, "mqtt.broker"},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"auth without keys", func(c *Config) { c.API.AuthEnabled = true }, "api_keys"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "ingest: [not, a, map]")); err == nil {
		t.Error("expected error for malformed yaml")
	}
	if _, err := Load(writeConfig(t, "ingest:\n  workers: 0\n")); err == nil {
		t.Error("expected validation error")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" a, b ,,c ")
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("SplitList = %q", got)
	}
	if SplitList("") != nil {
		t.Error("SplitList(\"\") should be nil")
	}
}
