package api

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// wsHandler upgrades to a websocket and hands the connection to the
// ConnectionManager. Same-origin requests are always accepted; other
// origins must match server.allowed_ws_origins.
func (s *Server) wsHandler(c *gin.Context) {
	if s.connManager == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "websocket not available"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.Server.AllowedWSOrigins,
	})
	if err != nil {
		// Accept has already written the error response.
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	// HandleConnection blocks until the websocket closes.
	s.connManager.HandleConnection(c.Request.Context(), conn)
}
