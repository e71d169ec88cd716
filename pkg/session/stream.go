// Package session wires the final answer pipeline for one client
// connection, whatever its transport: a sink dispatcher, a callback handler
// with its detector and an eino adapter feeding it. ConnectionManager runs
// such a pipeline for every websocket client.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/codeready-toolchain/finalstream/pkg/callback"
	"github.com/codeready-toolchain/finalstream/pkg/detector"
	"github.com/codeready-toolchain/finalstream/pkg/format"
	"github.com/codeready-toolchain/finalstream/pkg/llm"
	"github.com/codeready-toolchain/finalstream/pkg/sink"
)

// ErrNoGenerator is returned by Ask when no generation backend is
// configured.
var ErrNoGenerator = errors.New("generation backend is disabled")

// Stream is the answer pipeline of one connection. Its detector is reused
// across the asks of the connection; asks must not overlap.
type Stream struct {
	ID string

	dispatcher *sink.Dispatcher
	handler    *callback.Handler
	adapter    *callback.EinoAdapter
	reporter   callback.Reporter

	mu   sync.Mutex
	last *callback.RunReport
}

// NewStream builds the pipeline for kind, delivering to primary. Delivery
// stops when ctx ends.
func NewStream(ctx context.Context, id string, kind format.Kind, primary sink.Transport, deps Deps) (*Stream, error) {
	cfg := deps.Config
	tc := cfg.Transport(kind)

	f, err := format.NewFormatter(kind, tc.FormatOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s formatter: %w", kind, err)
	}

	transport := primary
	if deps.Publisher != nil {
		transport = sink.NewMulti(primary, sink.NewFanout(deps.Publisher, sink.Channel(id)))
	}

	s := &Stream{ID: id, reporter: deps.Reporter}
	s.dispatcher = sink.NewDispatcher(ctx, transport, sink.DispatcherOptions{
		Name:      id,
		QueueSize: tc.BufferSize,
	})
	s.handler = callback.NewHandler(cfg.Detector.EffectiveMarker(), f, s.dispatcher, callback.Options{
		ConnectionID:   id,
		ForwardRecords: tc.Forward(),
		Reporter:       callback.ReporterFunc(s.report),
	})

	var split func(string) []string
	if cfg.LLM.SplitTokens {
		split = detector.SplitWords
	}
	s.adapter = callback.NewEinoAdapter(ctx, s.handler, split)
	return s, nil
}

// Ask generates one answer and waits until every hook of the run has been
// handled. The returned report is nil when the generator never started a
// run.
func (s *Stream) Ask(ctx context.Context, gen Generator, req *llm.Request) (*callback.RunReport, error) {
	if gen == nil {
		return nil, ErrNoGenerator
	}
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()

	genErr := gen.Stream(ctx, req, s.adapter.Callbacks())
	// Hooks run on the adapter's worker and may lag behind the generator.
	if err := s.adapter.Wait(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}

	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	return last, genErr
}

// Send enqueues a message on the connection's ordered channel.
func (s *Stream) Send(ctx context.Context, msg format.Message) error {
	return s.dispatcher.Send(ctx, msg)
}

// SendEvent enqueues a connection-level event.
func (s *Stream) SendEvent(ctx context.Context, ev ServerEvent) error {
	return s.dispatcher.Send(ctx, EventMessage(ev))
}

// Flush waits until everything enqueued so far has been written.
func (s *Stream) Flush(ctx context.Context) error {
	return s.dispatcher.Flush(ctx)
}

// Handler returns the connection's callback handler.
func (s *Stream) Handler() *callback.Handler {
	return s.handler
}

// Close finishes queued hooks, delivers queued messages and stops the
// writer. It returns the delivery error, if any.
func (s *Stream) Close() error {
	s.adapter.Close()
	return s.dispatcher.Close()
}

func (s *Stream) report(ctx context.Context, r callback.RunReport) {
	s.mu.Lock()
	s.last = &r
	s.mu.Unlock()
	if s.reporter != nil {
		s.reporter.Report(ctx, r)
	}
}
