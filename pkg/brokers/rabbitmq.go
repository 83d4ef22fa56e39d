package brokers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ publishes to a single queue and consumes it with manual ack.
type RabbitMQ struct {
	config       Config
	conn         *amqp.Connection
	channel      *amqp.Channel
	queue        amqp.Queue
	lastDelivery *amqp.Delivery
}

// NewRabbitMQ validates cfg and fills defaults.
func NewRabbitMQ(cfg Config) (*RabbitMQ, error) {
	if cfg.Queue == "" {
		return nil, fmt.Errorf("brokers: queue name is required for RabbitMQ")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		if cfg.UseTLS {
			cfg.Port = 5671
		} else {
			cfg.Port = 5672
		}
	}
	if cfg.VHost == "" {
		cfg.VHost = "/"
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = cfg.Queue
	}
	return &RabbitMQ{config: cfg}, nil
}

// URL is the amqp(s) connection string for the configured server.
func (r *RabbitMQ) URL() string {
	u := url.URL{
		Scheme:  "amqp",
		Host:    r.config.Host + ":" + strconv.Itoa(r.config.Port),
		Path:    "/" + r.config.VHost,
		RawPath: "/" + url.PathEscape(r.config.VHost),
	}
	if r.config.UseTLS {
		u.Scheme = "amqps"
	}
	if r.config.User != "" {
		u.User = url.UserPassword(r.config.User, r.config.Password)
	}
	return u.String()
}

// Connect dials the server and declares the queue. Queue parameters must
// match an existing queue of the same name.
func (r *RabbitMQ) Connect(ctx context.Context) error {
	var err error
	if r.config.UseTLS {
		r.conn, err = amqp.DialTLS(r.URL(), &tls.Config{
			ServerName: r.config.Host,
			MinVersion: tls.VersionTLS12,
		})
	} else {
		r.conn, err = amqp.Dial(r.URL())
	}
	if err != nil {
		return fmt.Errorf("brokers: connect to RabbitMQ: %w", err)
	}

	r.channel, err = r.conn.Channel()
	if err != nil {
		r.conn.Close()
		return fmt.Errorf("brokers: open channel: %w", err)
	}

	r.queue, err = r.channel.QueueDeclare(
		r.config.Queue,
		r.config.Durable,
		r.config.AutoDelete,
		r.config.Exclusive,
		false,
		nil,
	)
	if err != nil {
		r.channel.Close()
		r.conn.Close()
		return fmt.Errorf("brokers: declare queue: %w", err)
	}

	if r.config.Exchange != "" {
		if err := r.channel.QueueBind(r.config.Queue, r.config.RoutingKey, r.config.Exchange, false, nil); err != nil {
			r.channel.Close()
			r.conn.Close()
			return fmt.Errorf("brokers: bind queue: %w", err)
		}
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			return fmt.Errorf("brokers: close channel: %w", err)
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("brokers: close connection: %w", err)
		}
	}
	return nil
}

// Send publishes a persistent message to the configured exchange.
func (r *RabbitMQ) Send(ctx context.Context, message []byte) error {
	if r.channel == nil {
		return ErrNotConnected
	}

	err := r.channel.PublishWithContext(ctx,
		r.config.Exchange,
		r.config.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  r.config.contentType(),
			Body:         message,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("brokers: publish: %w", err)
	}
	return nil
}

// Receive fetches one message without acknowledging it. An empty queue
// yields ErrNoMessage after a short wait.
func (r *RabbitMQ) Receive(ctx context.Context) ([]byte, error) {
	if r.channel == nil {
		return nil, ErrNotConnected
	}

	delivery, ok, err := r.channel.Get(r.config.Queue, false)
	if err != nil {
		return nil, fmt.Errorf("brokers: get message: %w", err)
	}
	if !ok {
		select {
		case <-time.After(time.Second):
			return nil, ErrNoMessage
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.lastDelivery = &delivery
	return delivery.Body, nil
}

// Ack removes the last received message from the queue.
func (r *RabbitMQ) Ack(context.Context) error {
	if r.lastDelivery == nil {
		return ErrNothingToAck
	}
	if err := r.lastDelivery.Ack(false); err != nil {
		return fmt.Errorf("brokers: ack: %w", err)
	}
	r.lastDelivery = nil
	return nil
}

// Nack rejects the last received message, optionally putting it back.
func (r *RabbitMQ) Nack(requeue bool) error {
	if r.lastDelivery == nil {
		return ErrNothingToAck
	}
	if err := r.lastDelivery.Nack(false, requeue); err != nil {
		return fmt.Errorf("brokers: nack: %w", err)
	}
	r.lastDelivery = nil
	return nil
}

func (r *RabbitMQ) Ping(context.Context) error {
	if r.conn == nil || r.conn.IsClosed() || r.channel == nil {
		return ErrNotConnected
	}
	return nil
}

func (r *RabbitMQ) Type() string { return "rabbitmq" }
