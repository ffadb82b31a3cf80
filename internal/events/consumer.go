// Package events consumes analyzer completion events from AMQP and applies
// them to the job store. It is an alternative delivery path to the HTTP
// completion callback; both feed the same status updater.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clipforge/vidqueue/internal/queue"
	"github.com/clipforge/vidqueue/internal/store"
	amqp "github.com/rabbitmq/amqp091-go"
)

const reconnectDelay = 5 * time.Second

// Consumer reads CompletionEvent messages from a durable queue.
type Consumer struct {
	url       string
	queueName string
	updater   *queue.StatusUpdater
}

// NewConsumer creates a Consumer. Run must be called to start consuming.
func NewConsumer(url, queueName string, updater *queue.StatusUpdater) *Consumer {
	return &Consumer{url: url, queueName: queueName, updater: updater}
}

// Run consumes until ctx is cancelled, reconnecting on broker failures.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		slog.Error("amqp consumer disconnected, reconnecting", "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(c.queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.Info("amqp consumer started", "queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

// handle applies one delivery. Malformed or unresolvable messages are
// rejected without requeue; transient store failures are redelivered.
func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	var ev queue.CompletionEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		slog.Error("malformed completion event", "error", err)
		_ = msg.Reject(false)
		return
	}

	if err := c.updater.Apply(ctx, ev); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, queue.ErrInvalidEventStatus):
			slog.Error("unresolvable completion event", "video_id", ev.VideoID, "error", err)
			_ = msg.Reject(false)
		default:
			slog.Error("apply completion event", "video_id", ev.VideoID, "error", err)
			_ = msg.Nack(false, true)
		}
		return
	}

	_ = msg.Ack(false)
}
