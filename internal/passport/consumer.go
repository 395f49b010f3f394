package passport

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"github.com/blockedby/chanscope/internal/logger"
	"github.com/blockedby/chanscope/internal/nats"
)

// Subscriber is the part of the JetStream client the consumer needs.
type Subscriber interface {
	Subscribe(ctx context.Context, stream, consumer, subject string, handler func([]byte) error) error
}

// Consumer regenerates passports when a channel's history was refreshed.
type Consumer struct {
	client    Subscriber
	generator *Generator
	log       *logger.Logger
	ctx       context.Context
}

// NewConsumer creates a new NATS consumer
func NewConsumer(client Subscriber, generator *Generator, log *logger.Logger) *Consumer {
	return &Consumer{
		client:    client,
		generator: generator,
		log:       log,
		ctx:       context.Background(),
	}
}

// Start subscribes to channels.refreshed. Handlers run until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	c.ctx = ctx
	c.log.Info().Msg("passport: starting consumer")
	return c.client.Subscribe(ctx, nats.StreamChannels, "passport_generator", nats.SubjectChannelRefreshed, c.handleMessage)
}

// handleMessage processes one event. Returning an error naks it.
func (c *Consumer) handleMessage(data []byte) error {
	var event struct {
		ChatID    int64    `json:"chat_id"`
		Refreshed []string `json:"refreshed"`
	}
	if err := json.Unmarshal(data, &event); err != nil || event.ChatID == 0 {
		// poison message: ack and move on
		c.log.Error().Err(err).Msg("passport: invalid event, skipping")
		return nil
	}
	if !slices.Contains(event.Refreshed, "history") {
		c.log.Debug().Int64("chat_id", event.ChatID).Msg("passport: history unchanged, skipping")
		return nil
	}

	_, err := c.generator.Generate(c.ctx, event.ChatID, true)
	if errors.Is(err, ErrNoHistory) {
		return nil
	}
	if err != nil {
		c.log.Error().Err(err).Int64("chat_id", event.ChatID).Msg("passport: generation failed")
		return err
	}
	return nil
}
