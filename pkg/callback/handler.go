// Package callback implements the run lifecycle hooks a token source calls:
// OnRunStart, OnNewToken and OnRunEnd. A Handler ties together one
// detector, one formatter and one sink for a single client connection and
// is reused across the runs of that connection.
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/finalstream/pkg/detector"
	"github.com/codeready-toolchain/finalstream/pkg/format"
	"github.com/codeready-toolchain/finalstream/pkg/sink"
)

// ErrNoActiveRun is returned when a token or run end arrives without a
// preceding OnRunStart.
var ErrNoActiveRun = errors.New("no active run: OnRunStart was not called")

// maxAnswerPreview bounds the answer text kept for the run report.
const maxAnswerPreview = 4096

// Outputs is the terminal payload of a run.
type Outputs struct {
	SourceDocuments []format.Record `json:"source_documents,omitempty"`
}

// RunReport summarizes a finished run.
type RunReport struct {
	RunID           string
	ConnectionID    string
	Transport       format.Kind
	Prompts         int
	Triggered       bool
	ForwardedTokens int
	Records         int
	// AnswerPreview holds the first bytes of the forwarded answer.
	AnswerPreview string
	Abandoned     bool
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Reporter receives a report after every run.
type Reporter interface {
	Report(ctx context.Context, report RunReport)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, report RunReport)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, report RunReport) {
	f(ctx, report)
}

// Options configure a Handler.
type Options struct {
	// ConnectionID tags logs and run reports.
	ConnectionID string
	// ForwardRecords enables dispatch of the run's supporting records at
	// run end.
	ForwardRecords bool
	// Reporter, when set, is called once per finished run.
	Reporter Reporter
}

// run is the state of the active run.
type run struct {
	id        string
	prompts   int
	startedAt time.Time
	forwarded int
	records   int
	preview   []byte
	abandoned bool
	err       error
}

// Handler drives the detector for one connection.
//
// The token source must serialize the hooks of a run. The Handler also
// guards its state with a mutex scoped to the connection, so a caller that
// interleaves two runs cannot corrupt the window; messages are sent after
// the mutex is released.
type Handler struct {
	mu        sync.Mutex
	detector  *detector.Detector
	formatter *format.Formatter
	sink      sink.Sink
	opts      Options
	current   *run
}

// NewHandler returns a Handler matching marker and delivering through s.
func NewHandler(marker []string, formatter *format.Formatter, s sink.Sink, opts Options) *Handler {
	return &Handler{
		detector:  detector.New(marker),
		formatter: formatter,
		sink:      s,
		opts:      opts,
	}
}

// OnRunStart resets the detector for a new run. A run that started earlier
// and never ended is superseded: one generation call may start the model
// several times before the run ends.
func (h *Handler) OnRunStart(_ context.Context, serialized map[string]any, prompts []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil {
		slog.Debug("Run restarted before it ended",
			"connection_id", h.opts.ConnectionID, "run_id", h.current.id)
	}
	h.detector.Reset()
	h.current = &run{
		id:        uuid.New().String(),
		prompts:   len(prompts),
		startedAt: time.Now(),
	}
	slog.Debug("Run started",
		"connection_id", h.opts.ConnectionID,
		"run_id", h.current.id,
		"name", serialized["name"],
		"prompts", len(prompts))
	return nil
}

// OnNewToken feeds one token to the detector and forwards it when it is
// part of the final answer. The marker-completing token is never sent.
//
// A delivery failure abandons the rest of the run: the failure is returned
// once, and later tokens of the same run are dropped silently.
func (h *Handler) OnNewToken(ctx context.Context, token string) error {
	h.mu.Lock()
	cur := h.current
	if cur == nil {
		h.mu.Unlock()
		return ErrNoActiveRun
	}
	if cur.abandoned {
		h.mu.Unlock()
		return nil
	}
	outcome, err := h.detector.Observe(token)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	if outcome == detector.OutcomeTriggered {
		slog.Debug("Final answer reached",
			"connection_id", h.opts.ConnectionID, "run_id", cur.id)
	}
	if !outcome.Forward() {
		h.mu.Unlock()
		return nil
	}
	cur.forwarded++
	cur.preview = appendPreview(cur.preview, token)
	msg := h.formatter.FormatToken(token)
	h.mu.Unlock()

	return h.send(ctx, cur, msg)
}

// OnRunEnd dispatches the run's supporting records, when record forwarding
// is enabled, whether or not the final answer was reached, then closes the
// run.
func (h *Handler) OnRunEnd(ctx context.Context, outputs Outputs) error {
	h.mu.Lock()
	cur := h.current
	if cur == nil {
		h.mu.Unlock()
		return ErrNoActiveRun
	}
	triggered := h.detector.Triggered()
	h.mu.Unlock()

	var sendErr error
	if h.opts.ForwardRecords && len(outputs.SourceDocuments) > 0 {
		sendErr = h.sendRecords(ctx, cur, outputs.SourceDocuments)
	}

	h.finish(ctx, cur, triggered, nil)
	return sendErr
}

// OnRunError closes the run after the token source failed. No records are
// sent.
func (h *Handler) OnRunError(ctx context.Context, runErr error) error {
	h.mu.Lock()
	cur := h.current
	if cur == nil {
		h.mu.Unlock()
		return ErrNoActiveRun
	}
	triggered := h.detector.Triggered()
	h.mu.Unlock()

	slog.Warn("Run failed in token source",
		"connection_id", h.opts.ConnectionID, "run_id", cur.id, "error", runErr)
	h.finish(ctx, cur, triggered, runErr)
	return nil
}

// RunID returns the id of the active run, or "" between runs.
func (h *Handler) RunID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return ""
	}
	return h.current.id
}

// State returns the detector state.
func (h *Handler) State() detector.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.detector.State()
}

// Kind returns the transport kind of the handler's formatter.
func (h *Handler) Kind() format.Kind {
	return h.formatter.Kind()
}

func (h *Handler) sendRecords(ctx context.Context, cur *run, records []format.Record) error {
	if header, ok := h.formatter.FormatRecordHeader(); ok {
		if err := h.send(ctx, cur, header); err != nil {
			return err
		}
	}
	for i, rec := range records {
		msg, err := h.formatter.FormatRecord(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if err := h.send(ctx, cur, msg); err != nil {
			return err
		}
		h.mu.Lock()
		cur.records++
		h.mu.Unlock()
	}
	return nil
}

// send dispatches msg unless the run is already abandoned. The first
// failure marks the run abandoned and is returned; the detector is left
// untouched so the next OnRunStart works normally.
func (h *Handler) send(ctx context.Context, cur *run, msg format.Message) error {
	h.mu.Lock()
	if cur.abandoned {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	err := h.sink.Send(ctx, msg)
	if err == nil {
		return nil
	}

	h.mu.Lock()
	cur.abandoned = true
	cur.err = err
	h.mu.Unlock()
	slog.Warn("Abandoning run after send failure",
		"connection_id", h.opts.ConnectionID, "run_id", cur.id, "error", err)
	return fmt.Errorf("run %s abandoned: %w", cur.id, err)
}

func (h *Handler) finish(ctx context.Context, cur *run, triggered bool, runErr error) {
	h.mu.Lock()
	if h.current == cur {
		h.current = nil
	}
	report := RunReport{
		RunID:           cur.id,
		ConnectionID:    h.opts.ConnectionID,
		Transport:       h.formatter.Kind(),
		Prompts:         cur.prompts,
		Triggered:       triggered,
		ForwardedTokens: cur.forwarded,
		Records:         cur.records,
		AnswerPreview:   string(cur.preview),
		Abandoned:       cur.abandoned,
		StartedAt:       cur.startedAt,
		FinishedAt:      time.Now(),
	}
	switch {
	case cur.err != nil:
		report.Error = cur.err.Error()
	case runErr != nil:
		report.Error = runErr.Error()
	}
	h.mu.Unlock()

	slog.Debug("Run finished",
		"connection_id", report.ConnectionID,
		"run_id", report.RunID,
		"triggered", report.Triggered,
		"forwarded_tokens", report.ForwardedTokens,
		"records", report.Records,
		"abandoned", report.Abandoned)

	if h.opts.Reporter != nil {
		h.opts.Reporter.Report(ctx, report)
	}
}

func appendPreview(buf []byte, token string) []byte {
	room := maxAnswerPreview - len(buf)
	if room <= 0 {
		return buf
	}
	if len(token) > room {
		// Cut on a rune boundary so the preview stays valid UTF-8.
		for room > 0 && !utf8.RuneStart(token[room]) {
			room--
		}
		token = token[:room]
	}
	return append(buf, token...)
}
