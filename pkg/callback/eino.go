package callback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	ucb "github.com/cloudwego/eino/utils/callbacks"

	"github.com/codeready-toolchain/finalstream/pkg/format"
)

const einoJobBuffer = 64

// EinoAdapter exposes a Handler as eino component callbacks.
//
// Chat model starts, streamed chunks and ends become OnRunStart, OnNewToken
// and OnRunEnd. Documents returned by a retriever are held and attached as
// source documents to the next model run that ends. eino may deliver the
// output stream on another goroutine, so every hook is queued to one worker
// to keep the run's calls in order.
type EinoAdapter struct {
	h     *Handler
	base  context.Context
	split func(string) []string

	mu   sync.Mutex
	docs []format.Record

	qmu    sync.Mutex
	closed bool
	jobs   chan func(context.Context)
	done   chan struct{}
}

// NewEinoAdapter starts an adapter for h. Hooks run with base as their
// context so that delivery outlives the caller's request context. When split
// is set, each streamed chunk is split into tokens with it (see
// detector.SplitWords); otherwise one chunk is one token.
func NewEinoAdapter(base context.Context, h *Handler, split func(string) []string) *EinoAdapter {
	a := &EinoAdapter{
		h:     h,
		base:  context.WithoutCancel(base),
		split: split,
		jobs: make(chan func(context.Context), einoJobBuffer),
		done: make(chan struct{}),
	}
	go a.loop()
	return a
}

// Callbacks returns the eino callback handler to pass with
// compose.WithCallbacks.
func (a *EinoAdapter) Callbacks() callbacks.Handler {
	return ucb.NewHandlerHelper().
		ChatModel(&ucb.ModelCallbackHandler{
			OnStart:               a.onModelStart,
			OnEnd:                 a.onModelEnd,
			OnEndWithStreamOutput: a.onModelStreamEnd,
			OnError:               a.onModelError,
		}).
		Retriever(&ucb.RetrieverCallbackHandler{
			OnEnd: a.onRetrieverEnd,
		}).
		Handler()
}

// Wait blocks until every hook queued so far has run.
func (a *EinoAdapter) Wait(ctx context.Context) error {
	barrier := make(chan struct{})
	if !a.enqueue(func(context.Context) { close(barrier) }) {
		return errors.New("eino adapter is closed")
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close runs the queued hooks and stops the worker.
func (a *EinoAdapter) Close() {
	a.qmu.Lock()
	if !a.closed {
		a.closed = true
		close(a.jobs)
	}
	a.qmu.Unlock()
	<-a.done
}

func (a *EinoAdapter) loop() {
	defer close(a.done)
	for job := range a.jobs {
		job(a.base)
	}
}

func (a *EinoAdapter) enqueue(job func(context.Context)) bool {
	a.qmu.Lock()
	defer a.qmu.Unlock()
	if a.closed {
		return false
	}
	a.jobs <- job
	return true
}

func (a *EinoAdapter) onModelStart(ctx context.Context, info *callbacks.RunInfo, input *model.CallbackInput) context.Context {
	serialized := map[string]any{}
	if info != nil {
		serialized["name"] = info.Name
		serialized["type"] = info.Type
		serialized["component"] = string(info.Component)
	}
	var prompts []string
	if input != nil {
		for _, m := range input.Messages {
			if m != nil {
				prompts = append(prompts, m.Content)
			}
		}
	}
	a.enqueue(func(ctx context.Context) {
		if err := a.h.OnRunStart(ctx, serialized, prompts); err != nil {
			slog.Warn("OnRunStart failed", "error", err)
		}
	})
	return ctx
}

func (a *EinoAdapter) onModelEnd(ctx context.Context, _ *callbacks.RunInfo, output *model.CallbackOutput) context.Context {
	var content string
	if output != nil && output.Message != nil {
		content = output.Message.Content
	}
	a.enqueue(func(ctx context.Context) {
		if content != "" {
			a.token(ctx, content)
		}
		a.end(ctx)
	})
	return ctx
}

func (a *EinoAdapter) onModelStreamEnd(ctx context.Context, _ *callbacks.RunInfo, output *schema.StreamReader[*model.CallbackOutput]) context.Context {
	a.enqueue(func(ctx context.Context) {
		defer output.Close()
		for {
			chunk, err := output.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				a.fail(ctx, fmt.Errorf("model stream: %w", err))
				return
			}
			if chunk == nil || chunk.Message == nil || chunk.Message.Content == "" {
				continue
			}
			a.token(ctx, chunk.Message.Content)
		}
		a.end(ctx)
	})
	return ctx
}

func (a *EinoAdapter) onModelError(ctx context.Context, _ *callbacks.RunInfo, err error) context.Context {
	a.enqueue(func(ctx context.Context) {
		a.fail(ctx, err)
	})
	return ctx
}

func (a *EinoAdapter) onRetrieverEnd(ctx context.Context, _ *callbacks.RunInfo, output *retriever.CallbackOutput) context.Context {
	if output == nil {
		return ctx
	}
	records := DocumentsToRecords(output.Docs)
	a.enqueue(func(context.Context) {
		a.mu.Lock()
		a.docs = append(a.docs, records...)
		a.mu.Unlock()
	})
	return ctx
}

func (a *EinoAdapter) token(ctx context.Context, content string) {
	tokens := []string{content}
	if a.split != nil {
		tokens = a.split(content)
	}
	for _, tok := range tokens {
		if err := a.h.OnNewToken(ctx, tok); err != nil {
			slog.Debug("Token not delivered", "error", err)
		}
	}
}

func (a *EinoAdapter) end(ctx context.Context) {
	a.mu.Lock()
	docs := a.docs
	a.docs = nil
	a.mu.Unlock()
	if err := a.h.OnRunEnd(ctx, Outputs{SourceDocuments: docs}); err != nil {
		slog.Debug("Run end not delivered", "error", err)
	}
}

func (a *EinoAdapter) fail(ctx context.Context, err error) {
	a.mu.Lock()
	a.docs = nil
	a.mu.Unlock()
	if herr := a.h.OnRunError(ctx, err); herr != nil {
		slog.Debug("Run error not recorded", "error", herr)
	}
}

// DocumentsToRecords converts retrieved documents to records. Metadata
// keeps the key order recorded by format.MetadataToMap; other keys are
// sorted.
func DocumentsToRecords(docs []*schema.Document) []format.Record {
	records := make([]format.Record, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		records = append(records, format.Record{
			Metadata:    format.MetadataFromMap(d.MetaData),
			PageContent: d.Content,
		})
	}
	return records
}
