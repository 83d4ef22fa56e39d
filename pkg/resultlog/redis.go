// Package resultlog publishes the outcome of export and import runs to Redis.
package resultlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "directus:run"
	DefaultTTL    = 24 * time.Hour
)

// Config addresses the Redis server and names the keys.
//
//	SET     <prefix>:<name>:state  <JSON>  EX <ttl>
//	PUBLISH <prefix>:<name>        <JSON>
type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// RunResult is the published state of a finished run.
type RunResult struct {
	Name       string    `json:"name"`
	Operation  string    `json:"operation"` // export | import
	Collection string    `json:"collection"`
	Target     string    `json:"target,omitempty"`
	Status     string    `json:"status"` // success | failed
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
	Batches    int       `json:"batches"`
	Items      int       `json:"items"`
	Error      *string   `json:"error,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Finish fills Status, Error and DurationMs from runErr and the timestamps.
func (r *RunResult) Finish(runErr error) {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	r.DurationMs = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	if runErr != nil {
		r.Status = StatusFailed
		msg := runErr.Error()
		r.Error = &msg
		return
	}
	r.Status = StatusSuccess
}

// RedisPublisher writes run results to Redis.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	owned  bool
}

// NewRedisPublisher dials cfg.Addr lazily; Close closes the connection.
func NewRedisPublisher(cfg Config) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	p := NewPublisher(client, cfg.Prefix, cfg.TTL)
	p.owned = true
	return p
}

// NewPublisher writes through an existing client.
func NewPublisher(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisPublisher{client: client, prefix: prefix, ttl: ttl}
}

func (p *RedisPublisher) StateKey(name string) string { return p.prefix + ":" + name + ":state" }

func (p *RedisPublisher) Channel(name string) string { return p.prefix + ":" + name }

// Publish stores r under its state key and announces it on its channel.
// Both happen whether the run succeeded or not.
func (p *RedisPublisher) Publish(ctx context.Context, r RunResult) error {
	if r.Status == "" {
		r.Finish(nil)
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("resultlog: marshal result: %w", err)
	}

	if err := p.client.Set(ctx, p.StateKey(r.Name), payload, p.ttl).Err(); err != nil {
		return fmt.Errorf("resultlog: redis SET: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(r.Name), payload).Err(); err != nil {
		return fmt.Errorf("resultlog: redis PUBLISH: %w", err)
	}
	return nil
}

// Last returns the stored state of name, or redis.Nil when it expired.
func (p *RedisPublisher) Last(ctx context.Context, name string) (RunResult, error) {
	var r RunResult
	data, err := p.client.Get(ctx, p.StateKey(name)).Bytes()
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("resultlog: decode state: %w", err)
	}
	return r, nil
}

func (p *RedisPublisher) Close() error {
	if p.owned {
		return p.client.Close()
	}
	return nil
}
