// Package cleanup prunes expired runs from the run ledger.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/finalstream/pkg/config"
)

// Pruner deletes runs that finished before a cutoff.
type Pruner interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically deletes runs older than the retention period.
// Deletion is idempotent, so several replicas may run it at once.
type Service struct {
	config *config.LedgerConfig
	pruner Pruner
	now    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.LedgerConfig, pruner Pruner) *Service {
	return &Service{
		config: cfg,
		pruner: pruner,
		now:    time.Now,
	}
}

// Start launches the background cleanup loop. It is a no-op when retention
// is disabled or the loop already runs.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil || s.config.RetentionDays <= 0 {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"retention_days", s.config.RetentionDays,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.pruneExpiredRuns(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneExpiredRuns(ctx)
		}
	}
}

func (s *Service) pruneExpiredRuns(ctx context.Context) {
	cutoff := s.now().Add(-time.Duration(s.config.RetentionDays) * 24 * time.Hour)
	count, err := s.pruner.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Retention: pruning runs failed", "error", err)
		}
		return
	}
	if count > 0 {
		slog.Info("Retention: pruned expired runs", "count", count, "cutoff", cutoff)
	}
}
