// Package nats wraps a NATS JetStream connection for channel events.
package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamChannels holds every channel lifecycle event.
	StreamChannels = "CHANNELS"
	// SubjectChannelRefreshed is published once per refreshed channel.
	SubjectChannelRefreshed = "channels.refreshed"
)

// Client holds the core connection and its JetStream context.
type Client struct {
	Conn *nats.Conn
	js   jetstream.JetStream
}

// New connects to url and opens JetStream on the connection.
func New(_ context.Context, url string) (*Client, error) {
	conn, err := nats.Connect(url, nats.Name("chanscope"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Client{Conn: conn, js: js}, nil
}

// EnsureStream creates the stream or updates its subjects.
func (c *Client) EnsureStream(ctx context.Context, name string, subjects []string) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: subjects,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", name, err)
	}
	return nil
}

// EnsureChannelStream declares the stream carrying channels.* subjects.
func (c *Client) EnsureChannelStream(ctx context.Context) error {
	return c.EnsureStream(ctx, StreamChannels, []string{"channels.>"})
}

// Publish marshals data as JSON and waits for the stream ack.
func (c *Client) Publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	if _, err := c.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe attaches a durable consumer to subject and hands every payload to
// handler. A handler error naks the message for redelivery. Consumption stops
// when ctx is done.
func (c *Client) Subscribe(ctx context.Context, stream, consumer, subject string, handler func([]byte) error) error {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       consumer,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumer, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		if err := handler(msg.Data()); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", subject, err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return nil
}

// Close closes the connection.
func (c *Client) Close() {
	c.Conn.Close()
}

// IsConnected reports the connection state.
func (c *Client) IsConnected() bool {
	return c.Conn.IsConnected()
}
