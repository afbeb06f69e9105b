package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultQueue = "mail.outbound"

// Publisher is a notification gateway that enqueues messages on a durable
// queue. Delivery happens in the mailer process.
type Publisher struct {
	ch    *amqp.Channel
	queue string
}

// NewPublisher opens a channel on conn and declares the queue.
func NewPublisher(conn *amqp.Connection, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := declare(ch, queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Publisher{ch: ch, queue: queue}, nil
}

func declare(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp queue declare %s: %w", queue, err)
	}
	return nil
}

func (p *Publisher) Send(ctx context.Context, to, subject, body string) error {
	msg := Message{To: to, Subject: subject, Body: body, EnqueuedAt: time.Now().UTC()}
	if err := msg.validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.EnqueuedAt,
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
