package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	// Subscribe delivers raw payloads until ctx is done; the channel is then closed.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Handler processes one payload. Returning an error does not stop the loop.
type Handler func(ctx context.Context, payload []byte) error

// Consume runs handler for every message on channel until ctx is done.
// Handler errors are passed to onError, which may be nil.
func Consume(ctx context.Context, b Broker, channel string, handler Handler, onError func(error)) error {
	msgs, err := b.Subscribe(ctx, channel)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if err := handler(ctx, msg); err != nil && onError != nil {
			onError(err)
		}
	}
	return ctx.Err()
}
