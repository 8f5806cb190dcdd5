package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/exchange-bridge/internal/config"
	"github.com/segmentio/kafka-go"
)

// TopicProducer publishes JSON messages to a single topic
type TopicProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// ProducerOptions selects delivery guarantees for a TopicProducer
type ProducerOptions struct {
	// Async returns from Publish before the broker acknowledges. Failures are only logged.
	Async bool
	// RequireAll waits for every in-sync replica instead of the leader only
	RequireAll bool
}

// NewTopicProducer creates a producer for topic and ensures the topic exists
func NewTopicProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig, topic string, opts ProducerOptions) (*TopicProducer, error) {
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is not configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for %s producer: %w", topic, err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, topic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure topic %s exists: %w", topic, err)
	}

	acks := kafka.RequireOne
	if opts.RequireAll {
		acks = kafka.RequireAll
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // same key, same partition: per-transaction ordering
		RequiredAcks: acks,
		Async:        opts.Async,
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write messages", "topic", topic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Successfully wrote messages", "topic", topic, "count", len(messages))
			}
		},
	}

	return &TopicProducer{
		logger: logger,
		writer: writer,
		topic:  topic,
	}, nil
}

// Topic returns the topic the producer writes to
func (p *TopicProducer) Topic() string {
	return p.topic
}

func (p *TopicProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for topic %s: %w", p.topic, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published message",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *TopicProducer) Close() error {
	p.logger.Info("Closing Kafka message producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
