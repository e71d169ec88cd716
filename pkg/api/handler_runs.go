package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// listRunsHandler handles GET /v1/runs?connection_id=&limit=.
func (s *Server) listRunsHandler(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "run ledger is disabled"})
		return
	}

	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunsLimit {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "limit must be an integer between 1 and " + strconv.Itoa(maxRunsLimit),
			})
			return
		}
		limit = n
	}

	runs, err := s.runs.Recent(c.Request.Context(), c.Query("connection_id"), limit)
	if err != nil {
		slog.Error("Failed to list runs", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, RunsResponse{Runs: runs})
}
