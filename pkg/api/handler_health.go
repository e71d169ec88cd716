package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/finalstream/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. Only finalstream's own components are
// checked; the generation backend is reported but never probed.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := &HealthResponse{
		Status:    healthStatusHealthy,
		Version:   version.Full(),
		Generator: s.generator != nil,
	}
	if s.connManager != nil {
		resp.Connections = s.connManager.ActiveConnections()
	}

	if s.runs != nil {
		resp.Checks = make(map[string]HealthCheck)
		status, err := s.runs.Health(reqCtx)
		if err != nil {
			// Streams keep working without the ledger.
			resp.Status = healthStatusDegraded
			resp.Checks["ledger"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			resp.Checks["ledger"] = HealthCheck{Status: healthStatusHealthy, Ledger: status}
		}
	}

	c.JSON(http.StatusOK, resp)
}
