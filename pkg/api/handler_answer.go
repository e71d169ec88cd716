package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/finalstream/pkg/format"
	"github.com/codeready-toolchain/finalstream/pkg/llm"
	"github.com/codeready-toolchain/finalstream/pkg/session"
	"github.com/codeready-toolchain/finalstream/pkg/sink"
)

// ConnectionIDHeader carries the id an HTTP stream is reported and
// mirrored under.
const ConnectionIDHeader = "X-Connection-Id"

// answerStreamHandler handles POST /v1/answer/stream (server-sent events).
func (s *Server) answerStreamHandler(c *gin.Context) {
	s.answer(c, format.KindPushStream)
}

// answerJSONHandler handles POST /v1/answer/json (newline-delimited JSON).
func (s *Server) answerJSONHandler(c *gin.Context) {
	s.answer(c, format.KindJSONStream)
}

// answer streams the final answer of one request. Errors found before the
// stream starts are plain JSON replies; later ones travel in the stream as
// an error event.
func (s *Server) answer(c *gin.Context, kind format.Kind) {
	if s.generator == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: session.ErrNoGenerator.Error()})
		return
	}

	var req llm.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	if timeout := s.cfg.Server.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var primary sink.Transport
	switch kind {
	case format.KindPushStream:
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		primary = sink.NewPushStream(c.Writer)
	default:
		c.Header("Content-Type", "application/x-ndjson")
		c.Header("Cache-Control", "no-cache")
		primary = sink.NewJSONStream(c.Writer)
	}

	connID := uuid.New().String()
	stream, err := session.NewStream(ctx, connID, kind, primary, s.deps)
	if err != nil {
		slog.Error("Failed to create answer stream", "connection_id", connID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.Header(ConnectionIDHeader, connID)
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	report, err := stream.Ask(ctx, s.generator, &req)
	if err != nil {
		slog.Warn("Answer generation failed", "connection_id", connID, "error", err)
		if sendErr := stream.SendEvent(ctx, session.ServerEvent{Type: session.EventError, Message: err.Error()}); sendErr != nil && !errors.Is(sendErr, sink.ErrClosed) {
			slog.Debug("Failed to queue error event", "connection_id", connID, "error", sendErr)
		}
	}
	if report != nil {
		_ = stream.SendEvent(ctx, session.ServerEvent{Type: session.EventRunCompleted, Run: session.Summarize(*report)})
	}

	// Close delivers what is queued; the writer goroutine must be done
	// with c.Writer before the handler returns.
	if err := stream.Close(); err != nil {
		slog.Debug("Answer stream closed with delivery error", "connection_id", connID, "error", err)
	}
}
