package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Event is one message. Key selects the partition; Value is sent as JSON.
type Event struct {
	Key   string
	Value any
}

// Producer publishes JSON-encoded events to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a synchronous Producer for topic. Builds publish one
// event each, so messages are written unbatched.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            5,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish serialises a single event and writes it to Kafka synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return fmt.Errorf("marshaling event value: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish message",
			"key", event.Key,
			"error", err,
		)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Info("event published",
		"key", event.Key,
		"value_size", len(value),
	)
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
