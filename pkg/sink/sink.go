// Package sink delivers formatted messages to a connected client.
//
// Every transport kind sits behind the same Sink contract. A Dispatcher
// owns one Transport and one writer goroutine: Send only enqueues, the
// writer delivers in enqueue order, and the first delivery failure closes
// the sink for good. Callers never hold their own state while a write
// waits on the network.
package sink

import (
	"context"
	"errors"

	"github.com/codeready-toolchain/finalstream/pkg/format"
)

// ErrClosed is returned by Send once the sink can no longer deliver, either
// because it was closed or because a previous write failed. When a write
// failed, the returned error also wraps the transport error.
var ErrClosed = errors.New("sink closed")

// Sink accepts formatted messages for asynchronous, ordered delivery.
type Sink interface {
	// Send enqueues msg. It returns an error wrapping ErrClosed when the
	// sink is unusable, or ctx.Err() if ctx ends while the queue is full.
	Send(ctx context.Context, msg format.Message) error
}

// Transport writes one message to the client. Write is only ever called
// from a single goroutine.
type Transport interface {
	Write(ctx context.Context, msg format.Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg format.Message) error

// Write calls f.
func (f TransportFunc) Write(ctx context.Context, msg format.Message) error {
	return f(ctx, msg)
}
