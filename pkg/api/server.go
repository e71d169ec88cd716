// Package api exposes the final answer streams over HTTP: server-sent
// events, newline-delimited JSON and a websocket, plus health and run
// history endpoints.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/finalstream/pkg/config"
	"github.com/codeready-toolchain/finalstream/pkg/ledger"
	"github.com/codeready-toolchain/finalstream/pkg/session"
)

// RunStore is the part of the run ledger the API reads.
type RunStore interface {
	Health(ctx context.Context) (*ledger.HealthStatus, error)
	Recent(ctx context.Context, connectionID string, limit int) ([]ledger.Run, error)
}

// Server is the HTTP API server.
type Server struct {
	cfg         *config.Config
	router      *gin.Engine
	httpServer  *http.Server
	deps        session.Deps
	generator   session.Generator
	connManager *session.ConnectionManager
	runs        RunStore
}

// NewServer creates the server and registers its routes. gen and runs may
// be nil: answer endpoints then return 503, and run history is disabled.
func NewServer(cfg *config.Config, deps session.Deps, gen session.Generator, connManager *session.ConnectionManager, runs RunStore) *Server {
	s := &Server{
		cfg:         cfg,
		router:      gin.New(),
		deps:        deps,
		generator:   gen,
		connManager: connManager,
		runs:        runs,
	}
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery(), requestLogger(), securityHeaders())
	if len(s.cfg.Server.CORSOrigins) > 0 {
		s.router.Use(corsMiddleware(s.cfg.Server.CORSOrigins))
	}

	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/v1")
	v1.POST("/answer/stream", s.answerStreamHandler)
	v1.POST("/answer/json", s.answerJSONHandler)
	v1.GET("/answer/ws", s.wsHandler)
	v1.GET("/runs", s.listRunsHandler)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves until Shutdown. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting requests and waits for in-flight streams.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
