package retry

import (
	"fmt"
	"time"
)

// BackoffStrategy selects how the delay grows between attempts.
type BackoffStrategy string

const (
	BackoffConstant    BackoffStrategy = "constant"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// Config controls retries of Directus calls.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// MaxAttempts counts the first call. 0 retries until the context ends.
	MaxAttempts int `yaml:"max_attempts"`

	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`

	BackoffStrategy   BackoffStrategy `yaml:"backoff"`
	BackoffMultiplier float64         `yaml:"multiplier"`

	// Jitter spreads each delay by ±Jitter (0.0–1.0).
	Jitter float64 `yaml:"jitter"`

	// RetryableErrors limits retries to errors whose message contains one of
	// these substrings. Empty retries every error.
	RetryableErrors []string `yaml:"retryable_errors"`

	// Retryable, when set, decides instead of RetryableErrors.
	Retryable func(error) bool `yaml:"-"`

	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`

	DLQ DLQConfig `yaml:"dlq"`
}

// DLQConfig configures the file-backed dead letter queue that keeps payloads
// whose retries ran out.
type DLQConfig struct {
	Enabled         bool          `yaml:"enabled"`
	FilePath        string        `yaml:"file"`
	MaxSize         int           `yaml:"max_size"`
	RetentionPeriod time.Duration `yaml:"retention"`
}

// Validate checks the configuration and fills in the multiplier default.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be >= 0, got %d", c.MaxAttempts)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0, got %v", c.InitialDelay)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max_delay (%v) must be >= initial_delay (%v)", c.MaxDelay, c.InitialDelay)
	}
	switch c.BackoffStrategy {
	case BackoffConstant, BackoffLinear, BackoffExponential:
	default:
		return fmt.Errorf("invalid backoff strategy: %q", c.BackoffStrategy)
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = 2.0
	}
	if c.Jitter < 0 || c.Jitter > 1.0 {
		return fmt.Errorf("jitter must be between 0.0 and 1.0, got %f", c.Jitter)
	}
	if c.DLQ.Enabled && c.DLQ.FilePath == "" {
		return fmt.Errorf("dlq.file is required when the dlq is enabled")
	}
	return nil
}

// DefaultConfig returns a disabled configuration with sensible values.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          15 * time.Second,
		BackoffStrategy:   BackoffExponential,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		DLQ: DLQConfig{
			FilePath:        "./directus-dlq.json",
			MaxSize:         10000,
			RetentionPeriod: 7 * 24 * time.Hour,
		},
	}
}

// EnableRetry returns DefaultConfig with retries switched on.
func EnableRetry(maxAttempts int, initialDelay time.Duration) Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.MaxAttempts = maxAttempts
	cfg.InitialDelay = initialDelay
	return cfg
}

// EnableRetryWithDLQ is EnableRetry plus a dead letter queue at dlqPath.
func EnableRetryWithDLQ(maxAttempts int, initialDelay time.Duration, dlqPath string) Config {
	cfg := EnableRetry(maxAttempts, initialDelay)
	cfg.DLQ.Enabled = true
	cfg.DLQ.FilePath = dlqPath
	return cfg
}
