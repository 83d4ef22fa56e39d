// Package brokers moves encoded export batches through message queues.
package brokers

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoMessage is returned by Receive when the queue is drained.
	ErrNoMessage = errors.New("brokers: no messages available")
	// ErrNotConnected is returned when an operation runs before Connect.
	ErrNotConnected = errors.New("brokers: not connected")
	// ErrNothingToAck is returned by Ack when no message is pending.
	ErrNothingToAck = errors.New("brokers: no message to acknowledge")
)

// MessageBroker is a queue that carries opaque payloads.
//
// Receive leaves the message pending until Ack is called, so a consumer that
// fails mid-batch sees the same message again on the next run.
type MessageBroker interface {
	Connect(ctx context.Context) error
	Close() error
	Send(ctx context.Context, message []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Ack(ctx context.Context) error
	Ping(ctx context.Context) error
	Type() string
}

// Config selects and configures a broker.
type Config struct {
	Type        string `yaml:"type"` // rabbitmq, kafka, memory
	ContentType string `yaml:"content_type"`

	// RabbitMQ
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Queue      string `yaml:"queue"`
	VHost      string `yaml:"vhost"`
	UseTLS     bool   `yaml:"use_tls"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`

	// Kafka
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

const defaultContentType = "application/json"

func (c Config) contentType() string {
	if c.ContentType == "" {
		return defaultContentType
	}
	return c.ContentType
}

// New builds an unconnected broker for cfg.Type.
func New(cfg Config) (MessageBroker, error) {
	switch cfg.Type {
	case "rabbitmq":
		return NewRabbitMQ(cfg)
	case "kafka":
		return NewKafka(cfg)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("brokers: unsupported broker type %q", cfg.Type)
	}
}
