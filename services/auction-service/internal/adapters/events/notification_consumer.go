package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	pkgevents "github.com/floroz/hammer/pkg/events"
	"github.com/floroz/hammer/services/auction-service/internal/domain/notifications"
)

const (
	NotificationsQueue = "auction_notifications"
	prefetchCount      = 10
)

var notificationBindings = []string{"bid.#", "auction.#"}

// EventProcessor handles one decoded auction event
type EventProcessor interface {
	Process(ctx context.Context, event notifications.Event) error
}

// NotificationConsumer consumes auction events and turns them into notifications
type NotificationConsumer struct {
	conn      *amqp.Connection
	processor EventProcessor
	logger    *slog.Logger
}

// NewNotificationConsumer creates a new notification consumer
func NewNotificationConsumer(conn *amqp.Connection, processor EventProcessor, logger *slog.Logger) *NotificationConsumer {
	return &NotificationConsumer{
		conn:      conn,
		processor: processor,
		logger:    logger,
	}
}

// Run starts the consumer loop. It returns nil when ctx is cancelled.
func (c *NotificationConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if setupErr := setupNotificationQueue(ch); setupErr != nil {
		return fmt.Errorf("failed to setup rabbitmq: %w", setupErr)
	}

	if qosErr := ch.Qos(prefetchCount, 0, false); qosErr != nil {
		return fmt.Errorf("failed to set prefetch: %w", qosErr)
	}

	msgs, err := ch.Consume(
		NotificationsQueue, // queue
		"",                 // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Waiting for auction events", "queue", NotificationsQueue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *NotificationConsumer) handle(ctx context.Context, d amqp.Delivery) {
	event, err := decodeDelivery(d)
	if err == nil {
		err = c.processor.Process(ctx, event)
	}

	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("Failed to Ack message", "error", ackErr)
		}
	case errors.Is(err, notifications.ErrMalformedEvent):
		// Retrying will not make it parse.
		c.logger.Error("Dropping malformed event", "routing_key", d.RoutingKey, "message_id", d.MessageId, "error", err)
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("Failed to Nack message", "error", nackErr)
		}
	default:
		c.logger.Error("Failed to process event", "routing_key", d.RoutingKey, "message_id", d.MessageId, "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("Failed to Nack message (requeue)", "error", nackErr)
		}
	}
}

func decodeDelivery(d amqp.Delivery) (notifications.Event, error) {
	id, err := uuid.Parse(d.MessageId)
	if err != nil {
		return notifications.Event{}, fmt.Errorf("%w: message id %q: %v", notifications.ErrMalformedEvent, d.MessageId, err)
	}
	fields, err := pkgevents.DecodePayload(d.Body)
	if err != nil {
		return notifications.Event{}, fmt.Errorf("%w: %v", notifications.ErrMalformedEvent, err)
	}
	return notifications.Event{ID: id, Type: d.RoutingKey, Fields: fields}, nil
}

func setupNotificationQueue(ch *amqp.Channel) error {
	if err := pkgevents.DeclareExchange(ch, Exchange); err != nil {
		return err
	}

	q, err := ch.QueueDeclare(
		NotificationsQueue, // name
		true,               // durable
		false,              // delete when unused
		false,              // exclusive
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return err
	}

	for _, key := range notificationBindings {
		if err := ch.QueueBind(q.Name, key, Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}
