package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"usersvc/internal/logger"
	"usersvc/internal/mail"
	"usersvc/internal/queue"
)

// MailWorker consumes queued mail messages and delivers them through a mail.Sender.
// Failed deliveries are logged and dropped; there is no retry.
type MailWorker struct {
	conn      *amqp.Connection
	sender    mail.Sender
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMailWorker returns a worker that consumes queueName on conn and delivers through sender.
func NewMailWorker(conn *amqp.Connection, sender mail.Sender, queueName string) *MailWorker {
	return &MailWorker{
		conn:      conn,
		sender:    sender,
		queueName: queueName,
	}
}

// Start declares the queue and consumes it in the background until ctx ends
// or Close is called. Calling Start on a running worker is a no-op.
func (w *MailWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel: %w", err)
	}

	if err := queue.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue %s: %w", w.queueName, err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *MailWorker) handle(ctx context.Context, d amqp.Delivery) {
	var msg mail.Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		logger.Errorf("mail worker decode message failed: %v", err)
		_ = d.Nack(false, false)
		return
	}

	if err := w.sender.Send(ctx, msg); err != nil {
		logger.Errorf("mail %s (%s) to %s failed: %v", msg.ID, msg.Kind, msg.To, err)
		_ = d.Nack(false, false)
		return
	}

	logger.Infof("mail %s (%s) sent to %s", msg.ID, msg.Kind, msg.To)
	_ = d.Ack(false)
}

// Close stops consumption and waits for the in-flight delivery to finish.
func (w *MailWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
