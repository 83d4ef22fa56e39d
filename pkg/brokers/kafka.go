package brokers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// DefaultConsumerGroup is used when Config.ConsumerGroup is empty.
const DefaultConsumerGroup = "directus-consumer-group"

// Kafka writes to and reads from one topic. Offsets are committed only by Ack.
type Kafka struct {
	config      Config
	writer      *kafka.Writer
	reader      *kafka.Reader
	lastMessage *kafka.Message
}

// NewKafka validates cfg and fills defaults.
func NewKafka(cfg Config) (*Kafka, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("brokers: topic name is required for Kafka")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers: at least one broker address is required for Kafka")
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = DefaultConsumerGroup
	}
	return &Kafka{config: cfg}, nil
}

// Connect creates the writer and reader and checks the topic is reachable.
func (k *Kafka) Connect(ctx context.Context) error {
	k.writer = &kafka.Writer{
		Addr:         kafka.TCP(k.config.Brokers...),
		Topic:        k.config.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}

	k.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.config.Brokers,
		GroupID:        k.config.ConsumerGroup,
		Topic:          k.config.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
		MaxWait:        time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
	})

	return k.Ping(ctx)
}

func (k *Kafka) Close() error {
	var errs []error
	if k.writer != nil {
		if err := k.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("brokers: close writer: %w", err))
		}
	}
	if k.reader != nil {
		if err := k.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("brokers: close reader: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (k *Kafka) Send(ctx context.Context, message []byte) error {
	if k.writer == nil {
		return ErrNotConnected
	}

	msg := kafka.Message{
		Key:   []byte(uuid.NewString()),
		Value: message,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte(k.config.contentType())},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("brokers: write message: %w", err)
	}
	return nil
}

// Receive blocks until a message arrives or ctx ends. The offset is not
// committed until Ack.
func (k *Kafka) Receive(ctx context.Context) ([]byte, error) {
	if k.reader == nil {
		return nil, ErrNotConnected
	}

	msg, err := k.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("brokers: fetch message: %w", err)
	}
	k.lastMessage = &msg
	return msg.Value, nil
}

// Ack commits the offset of the last received message.
func (k *Kafka) Ack(ctx context.Context) error {
	if k.lastMessage == nil {
		return ErrNothingToAck
	}
	if err := k.reader.CommitMessages(ctx, *k.lastMessage); err != nil {
		return fmt.Errorf("brokers: commit message: %w", err)
	}
	k.lastMessage = nil
	return nil
}

func (k *Kafka) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("brokers: dial Kafka: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(k.config.Topic); err != nil {
		return fmt.Errorf("brokers: read partitions: %w", err)
	}
	return nil
}

func (k *Kafka) Type() string { return "kafka" }

// Stats returns reader and writer counters.
func (k *Kafka) Stats() (readerStats kafka.ReaderStats, writerStats kafka.WriterStats) {
	if k.reader != nil {
		readerStats = k.reader.Stats()
	}
	if k.writer != nil {
		writerStats = k.writer.Stats()
	}
	return
}
