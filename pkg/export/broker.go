package export

import (
	"context"
	"fmt"

	"github.com/reise69/directus-go-sdk/pkg/brokers"
)

// BrokerSink publishes each batch as one message.
type BrokerSink struct {
	broker brokers.MessageBroker
	enc    *Encoder
}

// NewBrokerSink wraps a connected broker. Close closes the broker.
func NewBrokerSink(b brokers.MessageBroker, enc *Encoder) *BrokerSink {
	return &BrokerSink{broker: b, enc: enc}
}

func (s *BrokerSink) Write(ctx context.Context, b Batch) error {
	data, err := s.enc.Encode(b)
	if err != nil {
		return err
	}
	if err := s.broker.Send(ctx, data); err != nil {
		return fmt.Errorf("export: send to %s: %w", s.broker.Type(), err)
	}
	return nil
}

func (s *BrokerSink) Close() error { return s.broker.Close() }
