// Package messaging defines the queue abstraction feeding the worker pool.
// The pool only depends on these interfaces so alternative transports can be
// plugged in without touching the workers themselves.
package messaging

import (
	"context"
	"errors"
)

// ErrDeadLettered is returned by Nack when the message exhausted its
// retries and will not be redelivered.
var ErrDeadLettered = errors.New("message dead-lettered")

// Queue is an abstract message queue for any payload type.
type Queue[T any] interface {
	// Publish adds a new message carrying t to the queue.
	Publish(ctx context.Context, t *T) error

	// Consume retrieves a single message, blocking until one is available
	// or ctx is done.
	Consume(ctx context.Context) (Message[T], error)
}

// Message is a single message retrieved from a queue.
type Message[T any] interface {
	// T returns the payload of this message.
	T() *T

	// Ack acknowledges successful processing of this message.
	Ack() error

	// Nack reports failed processing. It returns nil when the message was
	// scheduled for redelivery and ErrDeadLettered once retries are
	// exhausted.
	Nack(err error) error
}
