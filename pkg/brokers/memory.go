package brokers

import (
	"context"
	"sync"
)

// Memory is an in-process queue. It backs dry runs and tests.
type Memory struct {
	mu        sync.Mutex
	connected bool
	queue     [][]byte
	pending   bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Connect(context.Context) error {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

func (m *Memory) Send(_ context.Context, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.queue = append(m.queue, append([]byte(nil), message...))
	return nil
}

// Receive returns the head of the queue and keeps it there until Ack.
func (m *Memory) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}
	if len(m.queue) == 0 {
		return nil, ErrNoMessage
	}
	m.pending = true
	return m.queue[0], nil
}

func (m *Memory) Ack(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pending {
		return ErrNothingToAck
	}
	m.queue = m.queue[1:]
	m.pending = false
	return nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	return nil
}

func (m *Memory) Type() string { return "memory" }

// Len reports the number of queued messages.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
