package notify

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
)

// PubSubSink publishes events to a Google Cloud Pub/Sub topic
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

var _ Sink = (*PubSubSink)(nil)

// NewPubSubSink connects to projectID and makes sure topicID exists,
// creating it when missing. PUBSUB_EMULATOR_HOST is honored.
func NewPubSubSink(ctx context.Context, projectID, topicID string) (*PubSubSink, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("pubsub project ID and topic are required")
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topic, err := ensureTopic(ctx, client, topicID)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &PubSubSink{client: client, topic: topic}, nil
}

func ensureTopic(ctx context.Context, client *pubsub.Client, topicID string) (*pubsub.Topic, error) {
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check pubsub topic %s: %w", topicID, err)
	}
	if exists {
		return topic, nil
	}

	topic, err = client.CreateTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub topic %s: %w", topicID, err)
	}
	slog.InfoContext(ctx, "Created pubsub topic", "topic", topicID)
	return topic, nil
}

// Name implements Sink
func (*PubSubSink) Name() string {
	return "pubsub"
}

// Publish implements Sink. It returns once the server has acknowledged the message.
func (s *PubSubSink) Publish(ctx context.Context, event Event) error {
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	result := s.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", s.topic.ID(), err)
	}
	return nil
}

// Close flushes pending messages and closes the client
func (s *PubSubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}
