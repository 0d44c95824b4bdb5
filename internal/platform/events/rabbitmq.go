package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel is the subset of *amqp.Channel the publisher uses.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type RabbitMQPublisher struct {
	conn  *amqp.Connection
	ch    AMQPChannel
	queue string
}

// NewRabbitMQPublisher dials the broker and declares a durable queue.
func NewRabbitMQPublisher(url, queue string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &RabbitMQPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func NewRabbitMQPublisherWithChannel(ch AMQPChannel, queue string) *RabbitMQPublisher {
	return &RabbitMQPublisher{ch: ch, queue: queue}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, msg Message) error {
	body, err := encode(msg)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         msg.Type,
		MessageId:    msg.Key,
		Timestamp:    msg.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", msg.Type, err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
