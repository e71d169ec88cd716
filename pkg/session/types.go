package session

import (
	"context"

	"github.com/cloudwego/eino/callbacks"

	"github.com/codeready-toolchain/finalstream/pkg/callback"
	"github.com/codeready-toolchain/finalstream/pkg/config"
	"github.com/codeready-toolchain/finalstream/pkg/format"
	"github.com/codeready-toolchain/finalstream/pkg/llm"
	"github.com/codeready-toolchain/finalstream/pkg/sink"
)

// Generator produces an answer, reporting its tokens through the given
// eino callback handlers. *llm.Generator implements it.
type Generator interface {
	Stream(ctx context.Context, req *llm.Request, handlers ...callbacks.Handler) error
}

// Deps are the shared collaborators of every stream.
type Deps struct {
	Config *config.Config
	// Publisher, when set, mirrors every stream to Redis.
	Publisher sink.Publisher
	// Reporter, when set, receives every run report (the run ledger).
	Reporter callback.Reporter
}

// Client actions.
const (
	ActionAsk  = "ask"
	ActionPing = "ping"
)

// Server event types.
const (
	EventConnectionEstablished = "connection.established"
	EventPong                  = "pong"
	EventError                 = "error"
	EventRunCompleted          = "run.completed"
)

// ClientMessage is a message received from a websocket client.
type ClientMessage struct {
	Action    string          `json:"action"`
	Prompt    string          `json:"prompt,omitempty"`
	Documents []format.Record `json:"documents,omitempty"`
}

// ServerEvent is a connection-level notice sent to the client. It shares
// the ordered channel with answer frames.
type ServerEvent struct {
	Type         string      `json:"type"`
	ConnectionID string      `json:"connection_id,omitempty"`
	Message      string      `json:"message,omitempty"`
	Run          *RunSummary `json:"run,omitempty"`
}

// RunSummary is the client-facing part of a run report.
type RunSummary struct {
	RunID           string `json:"run_id"`
	Triggered       bool   `json:"triggered"`
	ForwardedTokens int    `json:"forwarded_tokens"`
	Records         int    `json:"records"`
	Error           string `json:"error,omitempty"`
}

// Summarize converts a run report for the client.
func Summarize(r callback.RunReport) *RunSummary {
	return &RunSummary{
		RunID:           r.RunID,
		Triggered:       r.Triggered,
		ForwardedTokens: r.ForwardedTokens,
		Records:         r.Records,
		Error:           r.Error,
	}
}

// EventMessage wraps ev as an event message for a sink.
func EventMessage(ev ServerEvent) format.Message {
	return format.Message{Type: format.MessageTypeEvent, Text: ev.Type, Body: ev}
}
