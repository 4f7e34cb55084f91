// Package kafka implements a Kafka page event publisher on segmentio/kafka-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/hybrid-search/internal/publisher"
)

// Config selects the brokers and the default topic.
type Config struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes JSON page events to Kafka synchronously.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
	seq    atomic.Uint64
}

// New builds a Publisher with a hash-balanced writer that waits for all replicas.
func New(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka.brokers is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka.topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return newWithWriter(w, cfg.Topic, logger), nil
}

func newWithWriter(w messageWriter, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: logger.Named("kafka").With(zap.String("topic", topic)),
	}
}

// Publish writes one message. An empty topic falls back to the configured one.
// The returned ID is a per-publisher sequence number.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	key, data, err := publisher.Encode(payload)
	if err != nil {
		return "", err
	}
	if topic == "" {
		topic = p.topic
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish message", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("publishing to kafka: %w", err)
	}
	id := p.seq.Add(1)
	p.logger.Debug("message published", zap.String("key", key), zap.Int("value_size", len(data)))
	return strconv.FormatUint(id, 10), nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("closing kafka writer: %w", err)
	}
	return nil
}
