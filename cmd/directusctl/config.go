package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reise69/directus-go-sdk/pkg/brokers"
	"github.com/reise69/directus-go-sdk/pkg/cache"
	"github.com/reise69/directus-go-sdk/pkg/export"
	"github.com/reise69/directus-go-sdk/pkg/resilience"
	"github.com/reise69/directus-go-sdk/pkg/resultlog"
	"github.com/reise69/directus-go-sdk/pkg/retry"
	cmssync "github.com/reise69/directus-go-sdk/pkg/sync"
)

// Config is the directusctl configuration file.
type Config struct {
	Directus  DirectusConfig            `yaml:"directus"`
	Cache     CacheConfig               `yaml:"cache"`
	Retry     retry.Config              `yaml:"retry"`
	Breaker   resilience.Config         `yaml:"circuit_breaker"`
	Broker    brokers.Config            `yaml:"broker"`
	Export    ExportConfig              `yaml:"export"`
	Sync      cmssync.IncrementalConfig `yaml:"incremental"`
	S3        export.S3Config           `yaml:"s3"`
	Database  export.SQLConfig          `yaml:"database"`
	Mongo     export.MongoConfig        `yaml:"mongo"`
	ResultLog ResultLogConfig           `yaml:"resultlog"`
	Log       LogConfig                 `yaml:"log"`
}

type DirectusConfig struct {
	URL                string        `yaml:"url"`      // override via DIRECTUS_URL
	Token              string        `yaml:"token"`    // static token; override via DIRECTUS_TOKEN
	Email              string        `yaml:"email"`    // DIRECTUS_EMAIL
	Password           string        `yaml:"password"` // DIRECTUS_PASSWORD
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	RateLimit          float64       `yaml:"rate_limit"` // requests/sec, 0 = unlimited
	RateBurst          int           `yaml:"rate_burst"`
	SessionFile        string        `yaml:"session_file"` // where login keeps its tokens
}

type CacheConfig struct {
	Enabled      bool `yaml:"enabled"`
	cache.Config `yaml:",inline"`
}

type ExportConfig struct {
	export.EncoderConfig `yaml:",inline"`
	BatchSize            int           `yaml:"batch_size"`
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
	Output               string        `yaml:"output"` // file/xlsx sinks; default <collection>.<ext>
}

type ResultLogConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Name             string `yaml:"name"` // default <operation>-<collection>
	resultlog.Config `yaml:",inline"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Format string `yaml:"format"` // console|json
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Directus.Timeout = 30 * time.Second
	cfg.Directus.RateBurst = 1
	cfg.Directus.SessionFile = stateFile("session.json")
	cfg.Cache.Addr = "localhost:6379"
	cfg.Cache.TTL = 5 * time.Minute
	cfg.Retry = retry.DefaultConfig()
	cfg.Breaker = resilience.DefaultConfig("directus")
	cfg.Broker.Type = "rabbitmq"
	cfg.Broker.Queue = "directus-export"
	cfg.Broker.Durable = true
	cfg.Export.Format = export.FormatJSON
	cfg.Export.BatchSize = export.DefaultBatchSize
	cfg.Export.IdleTimeout = export.DefaultIdleTimeout
	cfg.Sync = cmssync.DefaultIncrementalConfig()
	cfg.Sync.StateFile = stateFile("sync_state.json")
	cfg.Database.Dialect = export.DialectSQLite
	cfg.Database.Table = "directus_export"
	cfg.Mongo.URI = "mongodb://localhost:27017"
	cfg.Mongo.Database = "directus"
	cfg.ResultLog.Addr = "localhost:6379"
	cfg.ResultLog.Prefix = resultlog.DefaultPrefix
	cfg.ResultLog.TTL = resultlog.DefaultTTL
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	return cfg
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("config: retry: %w", err)
	}
	if err := cfg.Sync.Validate(); err != nil {
		return nil, fmt.Errorf("config: incremental: %w", err)
	}
	if err := cfg.Breaker.Validate(); err != nil {
		return nil, fmt.Errorf("config: circuit_breaker: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	for env, dst := range map[string]*string{
		"DIRECTUS_URL":      &c.Directus.URL,
		"DIRECTUS_TOKEN":    &c.Directus.Token,
		"DIRECTUS_EMAIL":    &c.Directus.Email,
		"DIRECTUS_PASSWORD": &c.Directus.Password,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("DIRECTUS_REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
		c.ResultLog.Addr = v
	}
	if v := os.Getenv("DIRECTUS_INSECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: DIRECTUS_INSECURE: %w", err)
		}
		c.Directus.InsecureSkipVerify = b
	}
	return nil
}

// stateFile places name under ~/.directusctl, or in the working directory
// when there is no home.
func stateFile(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".directusctl-" + name
	}
	return filepath.Join(home, ".directusctl", name)
}
