package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/finalstream/pkg/format"
)

// DefaultQueueSize is the number of messages a Dispatcher buffers before
// Send starts to wait for the writer.
const DefaultQueueSize = 256

// item is a queued message. A non-nil ack turns it into a flush barrier.
type item struct {
	msg format.Message
	ack chan error
}

// Dispatcher is the Sink implementation shared by every transport kind.
type Dispatcher struct {
	transport Transport
	name      string

	queue chan item
	stop  chan struct{}
	done  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// sendMu is held shared by enqueue and exclusively by Close, so every
	// accepted message is in the queue before the writer starts draining.
	sendMu sync.RWMutex

	mu      sync.Mutex
	err     error
	stopped bool
}

// DispatcherOptions configure a Dispatcher.
type DispatcherOptions struct {
	// Name identifies the dispatcher in logs (usually the connection id).
	Name string
	// QueueSize bounds the send queue. Zero means DefaultQueueSize.
	QueueSize int
}

// NewDispatcher starts a Dispatcher writing to t. The writer stops when
// ctx ends, when a write fails, or when Close is called.
func NewDispatcher(ctx context.Context, t Transport, opts DispatcherOptions) *Dispatcher {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	dctx, cancel := context.WithCancel(ctx)
	d := &Dispatcher{
		transport: t,
		name:      opts.Name,
		queue:     make(chan item, size),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		ctx:       dctx,
		cancel:    cancel,
	}
	go d.run()
	return d
}

// Send enqueues msg for delivery.
func (d *Dispatcher) Send(ctx context.Context, msg format.Message) error {
	return d.enqueue(ctx, item{msg: msg})
}

// Flush waits until every message enqueued before the call has been
// written, and returns the terminal error if delivery failed.
func (d *Dispatcher) Flush(ctx context.Context) error {
	ack := make(chan error, 1)
	if err := d.enqueue(ctx, item{ack: ack}); err != nil {
		return err
	}
	select {
	case err := <-ack:
		return err
	case <-d.done:
		return d.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, it item) error {
	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	if err := d.closedErr(); err != nil {
		return err
	}
	select {
	case d.queue <- it:
		return nil
	case <-d.done:
		return d.closedErr()
	case <-d.stop:
		return d.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages, delivers what is already queued and
// waits for the writer to exit. It returns the delivery error, if any.
func (d *Dispatcher) Close() error {
	d.sendMu.Lock()
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.stop)
	}
	d.mu.Unlock()
	d.sendMu.Unlock()

	<-d.done
	d.cancel()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Err returns the delivery error that closed the sink, or nil.
func (d *Dispatcher) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Done is closed when the writer goroutine has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) closedErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if d.stopped {
		return ErrClosed
	}
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case it := <-d.queue:
			if !d.deliver(it) {
				d.failPending()
				return
			}
		case <-d.stop:
			d.drain()
			return
		case <-d.ctx.Done():
			d.fail(d.ctx.Err())
			d.failPending()
			return
		}
	}
}

// drain writes whatever is still queued after Close.
func (d *Dispatcher) drain() {
	for {
		select {
		case it := <-d.queue:
			if !d.deliver(it) {
				d.failPending()
				return
			}
		default:
			return
		}
	}
}

// deliver writes one item and reports whether the writer should continue.
func (d *Dispatcher) deliver(it item) bool {
	if it.ack != nil {
		it.ack <- nil
		return true
	}
	if err := d.transport.Write(d.ctx, it.msg); err != nil {
		d.fail(err)
		return false
	}
	return true
}

func (d *Dispatcher) fail(cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return
	}
	d.err = fmt.Errorf("%w: %w", ErrClosed, cause)
	slog.Warn("Sink delivery failed, closing sink",
		"sink", d.name, "error", cause)
}

// failPending releases flush barriers still in the queue after a failure.
func (d *Dispatcher) failPending() {
	err := d.Err()
	for {
		select {
		case it := <-d.queue:
			if it.ack != nil {
				it.ack <- err
			}
		default:
			return
		}
	}
}
