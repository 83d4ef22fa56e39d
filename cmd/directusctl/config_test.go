package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reise69/directus-go-sdk/pkg/export"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "directusctl.yaml", `
directus:
  url: https://cms.example.com
  token: from-file
  timeout: 10s
  rate_limit: 5
cache:
  enabled: true
  addr: redis:6379
  ttl: 1m
retry:
  enabled: true
  max_attempts: 4
  initial_delay: 100ms
  max_delay: 2s
  backoff: linear
circuit_breaker:
  enabled: true
  max_failures: 3
  timeout: 20s
broker:
  type: kafka
  brokers: [k1:9092, k2:9092]
  topic: cms
export:
  format: msgpack
  compress: true
  batch_size: 250
database:
  dialect: postgres
  dsn: postgres://localhost/cms
resultlog:
  enabled: true
  prefix: cms:runs
log:
  level: debug
  format: json
`)
	t.Setenv("DIRECTUS_TOKEN", "from-env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"url", cfg.Directus.URL, "https://cms.example.com"},
		{"env token wins", cfg.Directus.Token, "from-env"},
		{"timeout", cfg.Directus.Timeout, 10 * time.Second},
		{"rate limit", cfg.Directus.RateLimit, 5.0},
		{"cache addr", cfg.Cache.Addr, "redis:6379"},
		{"cache ttl", cfg.Cache.TTL, time.Minute},
		{"retry attempts", cfg.Retry.MaxAttempts, 4},
		{"retry delay", cfg.Retry.InitialDelay, 100 * time.Millisecond},
		{"breaker failures", cfg.Breaker.MaxFailures, uint32(3)},
		{"breaker timeout", cfg.Breaker.Timeout, 20 * time.Second},
		{"breaker name default", cfg.Breaker.Name, "directus"},
		{"broker", cfg.Broker.Type, "kafka"},
		{"brokers", len(cfg.Broker.Brokers), 2},
		{"format", cfg.Export.Format, export.FormatMsgpack},
		{"compress", cfg.Export.Compress, true},
		{"batch size", cfg.Export.BatchSize, 250},
		{"idle default", cfg.Export.IdleTimeout, export.DefaultIdleTimeout},
		{"dialect", cfg.Database.Dialect, "postgres"},
		{"table default", cfg.Database.Table, "directus_export"},
		{"resultlog prefix", cfg.ResultLog.Prefix, "cms:runs"},
		{"log format", cfg.Log.Format, "json"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DIRECTUS_URL", "http://localhost:8055")
	t.Setenv("DIRECTUS_REDIS_ADDR", "cache:6379")
	t.Setenv("DIRECTUS_INSECURE", "true")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Directus.URL != "http://localhost:8055" || !cfg.Directus.InsecureSkipVerify {
		t.Errorf("directus = %+v", cfg.Directus)
	}
	if cfg.Cache.Addr != "cache:6379" || cfg.ResultLog.Addr != "cache:6379" {
		t.Errorf("redis addr = %s / %s", cfg.Cache.Addr, cfg.ResultLog.Addr)
	}
	if cfg.Retry.Enabled || cfg.Breaker.Enabled || cfg.Cache.Enabled || cfg.ResultLog.Enabled {
		t.Error("optional features enabled by default")
	}
	if cfg.Sync.Enabled || cfg.Sync.TrackingField != "date_updated" || filepath.Base(cfg.Sync.StateFile) != "sync_state.json" {
		t.Errorf("incremental = %+v", cfg.Sync)
	}
	if cfg.Log.Level != "info" || cfg.Export.Format != export.FormatJSON {
		t.Errorf("defaults = %+v %+v", cfg.Log, cfg.Export)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		env  map[string]string
	}{
		{"missing file", filepath.Join(t.TempDir(), "nope.yaml"), nil},
		{"bad yaml", writeFile(t, "bad.yaml", "directus: [unclosed"), nil},
		{"bad retry", writeFile(t, "retry.yaml", "retry:\n  enabled: true\n  backoff: random\n"), nil},
		{"bad breaker", writeFile(t, "breaker.yaml", "circuit_breaker:\n  enabled: true\n  timeout: 0s\n"), nil},
		{"bad insecure", "", map[string]string{"DIRECTUS_INSECURE": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(tt.path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
