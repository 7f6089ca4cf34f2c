package notify

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
)

// PubNubConfig holds the PubNub connection settings
type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	UserID       string
	Channel      string

	// Origin overrides the PubNub host, mainly for tests
	Origin string
	Secure *bool
}

// PubNubSink publishes events to a PubNub channel
type PubNubSink struct {
	pn      *pubnub.PubNub
	channel string
}

var _ Sink = (*PubNubSink)(nil)

// NewPubNubSink creates a sink for cfg
func NewPubNubSink(cfg PubNubConfig) (*PubNubSink, error) {
	if cfg.PublishKey == "" || cfg.SubscribeKey == "" {
		return nil, fmt.Errorf("pubnub publish and subscribe keys are required")
	}
	if cfg.UserID == "" || cfg.Channel == "" {
		return nil, fmt.Errorf("pubnub user ID and channel are required")
	}

	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	if cfg.Origin != "" {
		pnConfig.Origin = cfg.Origin
	}
	if cfg.Secure != nil {
		pnConfig.Secure = *cfg.Secure
	}

	return &PubNubSink{
		pn:      pubnub.NewPubNub(pnConfig),
		channel: cfg.Channel,
	}, nil
}

// Name implements Sink
func (*PubNubSink) Name() string {
	return "pubnub"
}

// Publish implements Sink
func (s *PubNubSink) Publish(ctx context.Context, event Event) error {
	_, status, err := s.pn.PublishWithContext(ctx).
		Channel(s.channel).
		Message(event).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", s.channel, err)
	}
	if status.Error != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", s.channel, status.Error)
	}
	return nil
}

// Close stops the client's background workers
func (s *PubNubSink) Close() error {
	s.pn.Destroy()
	return nil
}
