package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/finalstream/pkg/format"
	"github.com/codeready-toolchain/finalstream/pkg/llm"
	"github.com/codeready-toolchain/finalstream/pkg/sink"
)

// maxPendingAsks bounds the asks a connection may queue behind the one
// that is streaming.
const maxPendingAsks = 4

// ConnectionManager runs one answer Stream per websocket connection.
// Each process has one ConnectionManager.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	deps      Deps
	generator Generator
}

// Connection is a single websocket client.
type Connection struct {
	ID     string
	Conn   *websocket.Conn
	stream *Stream
	ctx    context.Context
	cancel context.CancelFunc

	// asks are answered one at a time, in arrival order, by a worker
	// goroutine so the read loop keeps seeing pings and disconnects.
	asks   chan *llm.Request
	worker sync.WaitGroup
}

// NewConnectionManager creates a ConnectionManager. gen may be nil, in
// which case asks are answered with an error event.
func NewConnectionManager(deps Deps, gen Generator) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		deps:        deps,
		generator:   gen,
	}
}

// HandleConnection manages the lifecycle of a single websocket connection.
// Called by the HTTP handler after upgrade. Blocks until the connection
// closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	stream, err := NewStream(ctx, connID, format.KindSocket,
		sink.NewSocket(conn, m.deps.Config.Server.WriteTimeout), m.deps)
	if err != nil {
		slog.Error("Failed to create answer stream", "connection_id", connID, "error", err)
		_ = conn.Close(websocket.StatusInternalError, "stream setup failed")
		return
	}

	c := &Connection{
		ID:     connID,
		Conn:   conn,
		stream: stream,
		ctx:    ctx,
		cancel: cancel,
		asks:   make(chan *llm.Request, maxPendingAsks),
	}
	c.worker.Add(1)
	go m.askLoop(c)

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendEvent(c, ServerEvent{Type: EventConnectionEstablished, ConnectionID: connID})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", connID, "error", err)
			m.sendEvent(c, ServerEvent{Type: EventError, Message: "invalid message"})
			continue
		}

		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the count of active websocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case ActionAsk:
		req := &llm.Request{Prompt: msg.Prompt, Documents: msg.Documents}
		if err := req.Validate(); err != nil {
			m.sendEvent(c, ServerEvent{Type: EventError, Message: err.Error()})
			return
		}
		if m.generator == nil {
			m.sendEvent(c, ServerEvent{Type: EventError, Message: ErrNoGenerator.Error()})
			return
		}
		select {
		case c.asks <- req:
		default:
			m.sendEvent(c, ServerEvent{Type: EventError, Message: "too many pending asks"})
		}

	case ActionPing:
		m.sendEvent(c, ServerEvent{Type: EventPong})

	default:
		m.sendEvent(c, ServerEvent{Type: EventError, Message: "unknown action: " + msg.Action})
	}
}

func (m *ConnectionManager) askLoop(c *Connection) {
	defer c.worker.Done()
	for {
		select {
		case req := <-c.asks:
			m.ask(c, req)
		case <-c.ctx.Done():
			return
		}
	}
}

func (m *ConnectionManager) ask(c *Connection, req *llm.Request) {
	ctx := c.ctx
	if timeout := m.deps.Config.Server.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	report, err := c.stream.Ask(ctx, m.generator, req)
	if err != nil {
		slog.Warn("Answer generation failed", "connection_id", c.ID, "error", err)
		m.sendEvent(c, ServerEvent{Type: EventError, Message: err.Error()})
	}
	if report != nil {
		m.sendEvent(c, ServerEvent{Type: EventRunCompleted, Run: Summarize(*report)})
	}
}

func (m *ConnectionManager) sendEvent(c *Connection, ev ServerEvent) {
	if err := c.stream.SendEvent(c.ctx, ev); err != nil {
		slog.Debug("Failed to queue event", "connection_id", c.ID, "type", ev.Type, "error", err)
	}
}

func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
	slog.Info("WebSocket connection registered", "connection_id", c.ID, "total", len(m.connections))
}

func (m *ConnectionManager) unregisterConnection(c *Connection) {
	c.cancel()
	c.worker.Wait()
	if err := c.stream.Close(); err != nil {
		slog.Debug("Stream closed with delivery error", "connection_id", c.ID, "error", err)
	}

	m.mu.Lock()
	delete(m.connections, c.ID)
	remaining := len(m.connections)
	m.mu.Unlock()
	slog.Info("WebSocket connection unregistered", "connection_id", c.ID, "total", remaining)
}
