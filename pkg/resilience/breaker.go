// Package resilience stops calling a dependency that keeps failing and
// probes it again after a cool-down.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrOpen         = errors.New("circuit breaker is open")
	ErrTooManyCalls = errors.New("too many concurrent calls")
)

// State is the position of a circuit.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Counts are reset on every state change.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker is a circuit breaker. It is safe for concurrent use.
type Breaker struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
	running    uint32
}

func New(cfg Config, logger zerolog.Logger) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("circuit breaker %s: %w", cfg.Name, err)
	}
	return &Breaker{cfg: cfg, logger: logger, now: time.Now}, nil
}

// Execute calls fn unless the circuit is open. A disabled breaker always
// calls fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.cfg.Enabled {
		return fn(ctx)
	}
	generation, err := b.before()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.after(generation, false)
			panic(r)
		}
	}()

	err = fn(ctx)
	b.after(generation, !b.cfg.failure(err))
	return err
}

func (b *Breaker) Name() string { return b.cfg.Name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed)
	b.counts = Counts{}
	b.running = 0
}

func (b *Breaker) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("Breaker(%s state=%s failures=%d/%d)",
		b.cfg.Name, b.state, b.counts.ConsecutiveFailures, b.cfg.MaxFailures)
}

func (b *Breaker) before() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && !b.now().Before(b.expiry) {
		b.setState(StateHalfOpen)
	}
	if b.state == StateOpen {
		return b.generation, fmt.Errorf("%s: %w", b.cfg.Name, ErrOpen)
	}
	if b.cfg.MaxConcurrentCalls > 0 && b.running >= b.cfg.MaxConcurrentCalls {
		return b.generation, fmt.Errorf("%s: %w", b.cfg.Name, ErrTooManyCalls)
	}
	b.running++
	return b.generation, nil
}

func (b *Breaker) after(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running > 0 {
		b.running--
	}
	// The result of a call started under an earlier state is stale.
	if generation != b.generation {
		return
	}

	b.counts.Requests++
	if success {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.setState(StateClosed)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch b.state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.cfg.MaxFailures {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
	}
}

// setState must be called with mu held.
func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.generation++
	b.counts = Counts{}
	if to == StateOpen {
		b.expiry = b.now().Add(b.cfg.Timeout)
	} else {
		b.expiry = time.Time{}
	}

	ev := b.logger.Info()
	if to == StateOpen {
		ev = b.logger.Warn()
	}
	ev.Str("breaker", b.cfg.Name).Stringer("from", from).Stringer("to", to).Msg("circuit state changed")

	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
