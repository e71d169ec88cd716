package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/codeready-toolchain/finalstream/pkg/format"
)

// Socket writes one JSON text frame per message to a websocket.
type Socket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewSocket returns a Socket transport. A zero writeTimeout means the write
// is bounded only by the dispatcher context.
func NewSocket(conn *websocket.Conn, writeTimeout time.Duration) *Socket {
	return &Socket{conn: conn, writeTimeout: writeTimeout}
}

// Write sends one frame.
func (s *Socket) Write(ctx context.Context, msg format.Message) error {
	payload, err := msg.Payload()
	if err != nil {
		return err
	}
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}
	if err := s.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("failed to write websocket frame: %w", err)
	}
	return nil
}
