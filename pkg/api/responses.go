package api

import (
	"github.com/codeready-toolchain/finalstream/pkg/ledger"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	Connections int                    `json:"connections"`
	Generator   bool                   `json:"generator"`
	Checks      map[string]HealthCheck `json:"checks,omitempty"`
}

// HealthCheck is the status of one dependency.
type HealthCheck struct {
	Status  string               `json:"status"`
	Message string               `json:"message,omitempty"`
	Ledger  *ledger.HealthStatus `json:"ledger,omitempty"`
}

// RunsResponse is returned by GET /v1/runs.
type RunsResponse struct {
	Runs []ledger.Run `json:"runs"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
