package resilience

import (
	"context"
	"errors"
	"time"
)

// Config configures a Breaker.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`

	// MaxFailures consecutive failures open the circuit.
	MaxFailures uint32 `yaml:"max_failures"`

	// Timeout is how long the circuit stays open before a trial call.
	Timeout time.Duration `yaml:"timeout"`

	// SuccessThreshold consecutive successes in half-open close the circuit.
	SuccessThreshold uint32 `yaml:"success_threshold"`

	// MaxConcurrentCalls caps calls in flight, 0 = unlimited.
	MaxConcurrentCalls uint32 `yaml:"max_concurrent_calls"`

	// IsFailure reports whether err counts against the circuit. Errors it
	// rejects are recorded as successes. Nil counts every error except a
	// cancelled context.
	IsFailure func(err error) bool `yaml:"-"`

	OnStateChange func(name string, from, to State) `yaml:"-"`
}

// DefaultConfig returns a disabled breaker named name with the default
// thresholds filled in.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		SuccessThreshold: 1,
	}
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxFailures == 0 {
		return errors.New("max_failures must be greater than 0")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be greater than 0")
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1
	}
	if c.Name == "" {
		c.Name = "circuit-breaker"
	}
	return nil
}

func (c *Config) failure(err error) bool {
	if err == nil {
		return false
	}
	if c.IsFailure != nil {
		return c.IsFailure(err)
	}
	return !errors.Is(err, context.Canceled)
}
