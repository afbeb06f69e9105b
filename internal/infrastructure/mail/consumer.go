package mail

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/vamosfrotas/fleet-access/internal/infrastructure/queue"
)

const prefetch = 32

// Consumer drains the outbox queue into a Dispatcher. A message is acked only
// after delivery succeeds; failed deliveries are requeued once and dropped on
// the second failure, malformed messages are dropped immediately.
type Consumer struct {
	conn       *amqp.Connection
	queue      string
	dispatcher *queue.Dispatcher
	log        zerolog.Logger
}

func NewConsumer(conn *amqp.Connection, queueName string, dispatcher *queue.Dispatcher, log zerolog.Logger) *Consumer {
	if queueName == "" {
		queueName = DefaultQueue
	}
	return &Consumer{conn: conn, queue: queueName, dispatcher: dispatcher, log: log}
}

// Run consumes until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("set qos failed")
	}
	if err := declare(ch, c.queue); err != nil {
		return err
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	c.log.Info().Str("queue", c.queue).Msg("mail consumer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(d)
		}
	}
}

func (c *Consumer) handle(d amqp.Delivery) {
	msg, err := decodeMessage(d.Body)
	if err != nil {
		c.log.Error().Err(err).Msg("malformed mail message dropped")
		_ = d.Nack(false, false)
		return
	}

	c.dispatcher.Enqueue(queue.Job{
		To:      msg.To,
		Subject: msg.Subject,
		Body:    msg.Body,
		Done:    func(err error) { settle(d, d.Redelivered, err) },
	})
}

// acknowledger is the subset of amqp.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(d acknowledger, redelivered bool, err error) {
	if err == nil {
		_ = d.Ack(false)
		return
	}
	_ = d.Nack(false, !redelivered)
}
