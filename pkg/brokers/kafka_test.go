package brokers

import (
	"context"
	"testing"
	"time"
)

// Requires a Kafka server on localhost:9092.
func TestKafkaIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Kafka integration test in short mode")
	}

	broker, err := NewKafka(Config{
		Type:          "kafka",
		Brokers:       []string{"localhost:9092"},
		Topic:         "directus-test-topic",
		ConsumerGroup: "directus-test-group",
	})
	if err != nil {
		t.Fatalf("NewKafka: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := broker.Connect(ctx); err != nil {
		t.Skipf("Kafka server not available: %v", err)
	}
	defer broker.Close()

	msg := []byte(`{"collection":"articles","items":[{"id":1,"title":"Test"}]}`)
	if err := broker.Send(ctx, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := broker.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != string(msg) {
		t.Errorf("received %s, want %s", got, msg)
	}
	if err := broker.Ack(ctx); err != nil {
		t.Errorf("Ack: %v", err)
	}
}

func TestKafkaValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid config", Config{Brokers: []string{"localhost:9092"}, Topic: "test"}, false},
		{"missing topic", Config{Brokers: []string{"localhost:9092"}}, true},
		{"missing brokers", Config{Topic: "test"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := NewKafka(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewKafka() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && k.config.ConsumerGroup != DefaultConsumerGroup {
				t.Errorf("consumer group = %q", k.config.ConsumerGroup)
			}
		})
	}
}
