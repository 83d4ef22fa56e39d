package retry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestRetryer_Success(t *testing.T) {
	r, err := NewRetryer(EnableRetry(3, time.Millisecond))
	if err != nil {
		t.Fatalf("new retryer: %v", err)
	}

	attempts := 0
	err = r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_SuccessAfterRetries(t *testing.T) {
	cfg := EnableRetry(5, 5*time.Millisecond)
	cfg.Jitter = 0
	r, err := NewRetryer(cfg)
	if err != nil {
		t.Fatalf("new retryer: %v", err)
	}

	attempts := 0
	start := time.Now()
	err = r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Error("expected backoff delays between attempts")
	}
}

func TestRetryer_MaxAttemptsExceeded(t *testing.T) {
	r, _ := NewRetryer(EnableRetry(3, time.Millisecond))

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("persistent")
	})

	if !errors.Is(err, ErrMaxAttempts) {
		t.Errorf("expected ErrMaxAttempts, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryer_RetryableErrors(t *testing.T) {
	cfg := EnableRetry(5, time.Millisecond)
	cfg.RetryableErrors = []string{`"id" has to be unique`}
	r, _ := NewRetryer(cfg)

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("403 forbidden")
	})
	if !errors.Is(err, ErrNotRetryable) {
		t.Errorf("expected ErrNotRetryable, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}

	attempts = 0
	err = r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New(`Value for field "id" has to be unique`)
		}
		return nil
	})
	if err != nil || attempts != 2 {
		t.Errorf("expected success on attempt 2, got err=%v attempts=%d", err, attempts)
	}
}

func TestRetryer_PredicateOverridesPatterns(t *testing.T) {
	sentinel := errors.New("temporary")
	cfg := EnableRetry(3, time.Millisecond)
	cfg.RetryableErrors = []string{"never matches"}
	cfg.Retryable = func(err error) bool { return errors.Is(err, sentinel) }
	r, _ := NewRetryer(cfg)

	attempts := 0
	_ = r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return sentinel
	})
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryer_ContextCancelled(t *testing.T) {
	r, _ := NewRetryer(EnableRetry(0, 50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Do(ctx, func(ctx context.Context) error {
		return errors.New("keep failing")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRetryer_Disabled(t *testing.T) {
	r, _ := NewRetryer(DefaultConfig())

	attempts := 0
	boom := errors.New("boom")
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return boom
	})
	if err != boom || attempts != 1 {
		t.Errorf("disabled retryer should call once and return the error, got %v after %d", err, attempts)
	}
}

func TestRetryer_DelayStrategies(t *testing.T) {
	tests := []struct {
		strategy BackoffStrategy
		attempt  int
		want     time.Duration
	}{
		{BackoffConstant, 3, 10 * time.Millisecond},
		{BackoffLinear, 3, 30 * time.Millisecond},
		{BackoffExponential, 3, 40 * time.Millisecond},
		{BackoffExponential, 10, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			cfg := EnableRetry(10, 10*time.Millisecond)
			cfg.MaxDelay = 100 * time.Millisecond
			cfg.BackoffStrategy = tt.strategy
			cfg.Jitter = 0
			r, err := NewRetryer(cfg)
			if err != nil {
				t.Fatalf("new retryer: %v", err)
			}
			if got := r.delay(tt.attempt); got != tt.want {
				t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
			}
		})
	}
}

func TestRetryer_ParksDataInDLQ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlq.json")
	r, err := NewRetryer(EnableRetryWithDLQ(2, time.Millisecond, path))
	if err != nil {
		t.Fatalf("new retryer: %v", err)
	}

	batch := []map[string]any{{"title": "a"}}
	err = r.DoWithData(context.Background(), "bulk_insert:articles", func(ctx context.Context) error {
		return errors.New("502 bad gateway")
	}, batch)
	if !errors.Is(err, ErrMaxAttempts) {
		t.Fatalf("expected ErrMaxAttempts, got %v", err)
	}

	entries := r.DLQ().Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 dlq entry, got %d", len(entries))
	}
	if entries[0].Operation != "bulk_insert:articles" || entries[0].Attempts != 2 {
		t.Errorf("unexpected entry %+v", entries[0])
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Negative attempts", func(c *Config) { c.MaxAttempts = -1 }},
		{"Max below initial", func(c *Config) { c.MaxDelay = time.Millisecond; c.InitialDelay = time.Second }},
		{"Bad strategy", func(c *Config) { c.BackoffStrategy = "fibonacci" }},
		{"Bad jitter", func(c *Config) { c.Jitter = 2 }},
		{"DLQ without file", func(c *Config) { c.DLQ.Enabled = true; c.DLQ.FilePath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := EnableRetry(3, time.Millisecond)
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
