// Package publisher announces refresh results on the event bus.
package publisher

import (
	"context"
	"fmt"

	"github.com/blockedby/chanscope/internal/nats"
	"github.com/blockedby/chanscope/internal/refresh"
)

// NATSClient is the part of the JetStream client used here.
type NATSClient interface {
	Publish(ctx context.Context, subject string, data any) error
}

// NATSPublisher implements refresh.EventPublisher.
type NATSPublisher struct {
	js NATSClient
}

var _ refresh.EventPublisher = (*NATSPublisher)(nil)

// NewNATSPublisher creates a new publisher
func NewNATSPublisher(js NATSClient) *NATSPublisher {
	return &NATSPublisher{js: js}
}

// PublishChannelRefreshed publishes a channel refreshed event
func (p *NATSPublisher) PublishChannelRefreshed(ctx context.Context, event refresh.ChannelRefreshedEvent) error {
	if err := p.js.Publish(ctx, nats.SubjectChannelRefreshed, event); err != nil {
		return fmt.Errorf("publish channel %d refreshed: %w", event.ChatID, err)
	}
	return nil
}
