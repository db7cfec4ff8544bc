package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"usersvc/internal/mail"
)

// channel is the subset of *amqp.Channel used for publishing.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// MailPublisher is a mail.Dispatcher that publishes messages to a durable RabbitMQ queue.
type MailPublisher struct {
	queueName string

	mu sync.Mutex
	ch channel
}

var _ mail.Dispatcher = (*MailPublisher)(nil)

// NewMailPublisher opens a publishing channel on conn and declares the queue.
func NewMailPublisher(conn *amqp.Connection, queueName string) (*MailPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := DeclareQueue(ch, queueName); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &MailPublisher{queueName: queueName, ch: ch}, nil
}

// Dispatch publishes msg as a persistent JSON delivery.
func (p *MailPublisher) Dispatch(ctx context.Context, msg mail.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail message: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    msg.ID,
			Type:         msg.Kind,
			Timestamp:    msg.CreatedAt,
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish mail message: %w", err)
	}
	return nil
}

// Close closes the publishing channel.
func (p *MailPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
