package mail

import (
	"context"
	"errors"
	"sync"

	"usersvc/internal/logger"
)

// ErrQueueFull is returned by LocalQueue.Dispatch when the buffer is full.
var ErrQueueFull = errors.New("mail queue is full")

// ErrQueueClosed is returned by LocalQueue.Dispatch after Close.
var ErrQueueClosed = errors.New("mail queue is closed")

// LocalQueue is an in-process Dispatcher backed by a buffered channel and
// a single delivery goroutine. It is used when no message broker is configured.
type LocalQueue struct {
	sender Sender
	jobs   chan Message

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalQueue creates a queue holding up to size pending messages.
func NewLocalQueue(sender Sender, size int) *LocalQueue {
	if size <= 0 {
		size = 1
	}
	return &LocalQueue{
		sender: sender,
		jobs:   make(chan Message, size),
	}
}

// Start launches the delivery goroutine. Delivery uses ctx; pending messages are
// still drained by Close after ctx is cancelled, with the cancelled context.
func (q *LocalQueue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for msg := range q.jobs {
			if err := q.sender.Send(ctx, msg); err != nil {
				logger.Errorf("mail %s (%s) to %s failed: %v", msg.ID, msg.Kind, msg.To, err)
				continue
			}
			logger.Infof("mail %s (%s) sent to %s", msg.ID, msg.Kind, msg.To)
		}
	}()
}

// Dispatch enqueues msg without waiting for delivery.
func (q *LocalQueue) Dispatch(_ context.Context, msg Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for pending ones to be processed.
func (q *LocalQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.wg.Wait()
}
