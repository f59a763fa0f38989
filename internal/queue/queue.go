// Package queue provides the RabbitMQ client used to publish and consume
// durable messages, most notably the shipment dispatch feed. Queue failures
// are the caller's to log; nothing in this package panics or retries.
package queue

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client wraps an AMQP connection and channel.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *slog.Logger
}

// Dial connects to the broker at the given URL and opens a channel. A nil
// logger falls back to slog.Default().
func Dial(url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	logger.Info("connected to message broker")
	return &Client{conn: conn, ch: ch, log: logger}, nil
}

// DeclareQueue asserts a durable priority queue with the given name.
func (c *Client) DeclareQueue(name string) error {
	_, err := c.ch.QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-max-priority": int32(10),
	})
	if err != nil {
		return fmt.Errorf("declaring queue %s: %w", name, err)
	}
	return nil
}

// DeleteQueue removes a queue.
func (c *Client) DeleteQueue(name string) error {
	if _, err := c.ch.QueueDelete(name, false, false, false); err != nil {
		return fmt.Errorf("deleting queue %s: %w", name, err)
	}
	return nil
}

// Publish sends a persistent message to a queue.
func (c *Client) Publish(ctx context.Context, queue string, body []byte) error {
	err := c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", queue, err)
	}
	return nil
}

// Consume delivers each message body on the queue to handler from a dedicated
// goroutine, acknowledging after the handler returns. A handler panic is
// recovered and logged so one bad message cannot stop consumption. Consume
// returns once the consumer is registered; it stops when ctx is canceled or
// the channel closes.
func (c *Client) Consume(ctx context.Context, queue string, handler func([]byte)) error {
	deliveries, err := c.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming from %s: %w", queue, err)
	}

	go func() {
		c.log.Info("listening for messages", "queue", queue)
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					c.log.Warn("consumer channel closed", "queue", queue)
					return
				}
				c.handleDelivery(queue, delivery, handler)
			}
		}
	}()

	return nil
}

func (c *Client) handleDelivery(queue string, delivery amqp.Delivery, handler func([]byte)) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("recovered from panic in message handler", "queue", queue, "panic", r)
		}
	}()

	handler(delivery.Body)
	if err := delivery.Ack(false); err != nil {
		c.log.Warn("acking message failed", "queue", queue, "error", err)
	}
}

// Close shuts down the channel and connection.
func (c *Client) Close() error {
	if err := c.ch.Close(); err != nil {
		_ = c.conn.Close()
		return fmt.Errorf("closing channel: %w", err)
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}
	return nil
}
