// Package memory provides the in-process queue implementation used by the
// worker pool by default.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/flotilla/internal/clock"
	"github.com/viant/flotilla/internal/idgen"
	"github.com/viant/flotilla/service/messaging"
)

// Config controls retry and buffering behaviour of the in-memory queue.
type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	DeadLetter  bool
	QueueBuffer int
}

// DefaultConfig returns a standard configuration for the memory queue.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		DeadLetter:  true,
		QueueBuffer: 100,
	}
}

// Message implements messaging.Message for the in-memory queue.
type Message[T any] struct {
	id       string
	payload  T
	owner    *Queue[T]
	attempts int

	mu      sync.Mutex
	settled bool
}

// T returns the message payload.
func (m *Message[T]) T() *T {
	return &m.payload
}

// Ack marks the message as successfully processed.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return fmt.Errorf("message %s already settled", m.id)
	}
	m.settled = true
	return nil
}

// Nack reports failed processing. The message is redelivered after the
// retry delay until MaxRetries is exhausted; afterwards it moves to the
// dead-letter list when enabled and Nack returns messaging.ErrDeadLettered.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return fmt.Errorf("message %s already settled", m.id)
	}
	m.settled = true
	m.attempts++

	if m.attempts <= m.owner.config.MaxRetries {
		go m.owner.redeliver(m)
		return nil
	}
	if m.owner.config.DeadLetter {
		m.owner.deadMu.Lock()
		m.owner.dead = append(m.owner.dead, m)
		m.owner.deadMu.Unlock()
	}
	return messaging.ErrDeadLettered
}

// Queue is an in-memory messaging.Queue backed by a buffered channel.
type Queue[T any] struct {
	config   Config
	messages chan *Message[T]

	deadMu sync.Mutex
	dead   []*Message[T]
}

// NewQueue creates a new in-memory queue.
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		config:   config,
		messages: make(chan *Message[T], config.QueueBuffer),
	}
}

// Publish adds a new payload to the queue.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &Message[T]{
		id:      idgen.New(),
		payload: *t,
		owner:   q,
	}
	select {
	case q.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume retrieves a single message, blocking until one is available or
// ctx is done.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the number of messages currently buffered.
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// DeadLetterSize returns the number of messages that exhausted retries.
func (q *Queue[T]) DeadLetterSize() int {
	q.deadMu.Lock()
	defer q.deadMu.Unlock()
	return len(q.dead)
}

func (q *Queue[T]) redeliver(m *Message[T]) {
	delay := q.config.RetryDelay
	if delay > 0 {
		deadline := clock.Now().Add(delay)
		time.Sleep(time.Until(deadline))
	}
	q.messages <- &Message[T]{
		id:       m.id,
		payload:  m.payload,
		owner:    q,
		attempts: m.attempts,
	}
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
