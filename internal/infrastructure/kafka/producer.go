package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/btc-guess/internal/events"
	"github.com/segmentio/kafka-go"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer}
}

// Publish writes the envelope keyed by env.Key, so events sharing a key land
// on one partition in order.
func (p *Producer) Publish(ctx context.Context, env events.Envelope) error {
	msg, err := toMessage(env)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// EventTypeHeader carries the envelope type so consumers can route without decoding
const EventTypeHeader = "event-type"

func toMessage(env events.Envelope) (kafka.Message, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal envelope %s: %w", env.ID, err)
	}

	return kafka.Message{
		Key:   []byte(env.Key),
		Value: data,
		Time:  env.Timestamp,
		Headers: []kafka.Header{
			{Key: EventTypeHeader, Value: []byte(env.Type)},
		},
	}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
