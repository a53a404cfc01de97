// Package queue defines the transport-neutral view of an inbound message stream.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by Fetch after Close.
var ErrClosed = errors.New("queue: source closed")

// Delivery is one fetched message. Ack must be called exactly once, after the
// message was fully handled or deliberately dropped.
type Delivery interface {
	Body() []byte
	Ack(ctx context.Context) error
}

// Source yields deliveries in transport order.
type Source interface {
	Fetch(ctx context.Context) (Delivery, error)
	Close() error
}

// DeadLetter is a dropped message kept for inspection.
type DeadLetter struct {
	Transport string
	Reason    string
	Payload   []byte
}

// DeadLetterRecorder stores dropped messages.
type DeadLetterRecorder interface {
	RecordDeadLetter(ctx context.Context, letter DeadLetter) error
}
