// Package pubsub implements a Google Cloud Pub/Sub page event publisher.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/hybrid-search/internal/publisher"
)

// Publisher wraps a Pub/Sub topic handle.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// New connects to projectID, verifies topicID exists and returns a Publisher.
func New(ctx context.Context, projectID, topicID string, logger *zap.Logger, opts ...option.ClientOption) (*Publisher, error) {
	if projectID == "" {
		return nil, fmt.Errorf("pubsub.project_id is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("pubsub.topic_name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil || !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client", zap.Error(closeErr))
		}
		if err != nil {
			return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &Publisher{client: client, topic: topic, logger: logger.Named("pubsub")}, nil
}

// NewWithTopic wraps an existing topic handle. The caller owns the client.
func NewWithTopic(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic, logger: zap.NewNop()}
}

// Publish marshals the payload to JSON and waits for the server to accept it.
// The topic argument is informational; messages go to the configured topic.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if p == nil || p.topic == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	key, data, err := publisher.Encode(payload)
	if err != nil {
		return "", err
	}
	msg := &pubsub.Message{Data: data}
	if key != "" {
		msg.Attributes = map[string]string{"key": key}
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	p.logger.Debug("page event published", zap.String("id", id), zap.String("key", key))
	return id, nil
}

// Close flushes pending messages and closes the client when owned.
func (p *Publisher) Close() error {
	if p == nil || p.topic == nil {
		return nil
	}
	p.topic.Stop()
	if p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
