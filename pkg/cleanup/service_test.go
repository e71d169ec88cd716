package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/finalstream/pkg/config"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (p *fakePruner) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	if p.err != nil {
		return 0, p.err
	}
	return 2, nil
}

func (p *fakePruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func ledgerConfig(days int, interval time.Duration) *config.LedgerConfig {
	cfg := config.DefaultLedgerConfig()
	cfg.RetentionDays = days
	cfg.CleanupInterval = interval
	return cfg
}

func TestService_PrunesWithRetentionCutoff(t *testing.T) {
	pruner := &fakePruner{}
	svc := NewService(ledgerConfig(30, time.Hour), pruner)
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.pruneExpiredRuns(context.Background())

	require.Len(t, pruner.cutoffs, 1)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), pruner.cutoffs[0])
}

func TestService_PruneErrorIsLogged(t *testing.T) {
	pruner := &fakePruner{err: errors.New("connection refused")}
	svc := NewService(ledgerConfig(1, time.Hour), pruner)

	assert.NotPanics(t, func() { svc.pruneExpiredRuns(context.Background()) })
	assert.Equal(t, 1, pruner.calls())
}

func TestService_StartRunsImmediatelyAndOnTicks(t *testing.T) {
	pruner := &fakePruner{}
	svc := NewService(ledgerConfig(7, 10*time.Millisecond), pruner)

	svc.Start(context.Background())
	svc.Start(context.Background())
	assert.Eventually(t, func() bool { return pruner.calls() >= 3 }, 2*time.Second, 5*time.Millisecond)

	svc.Stop()
	calls := pruner.calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, pruner.calls())
}

func TestService_DisabledRetention(t *testing.T) {
	pruner := &fakePruner{}
	svc := NewService(ledgerConfig(0, time.Hour), pruner)

	svc.Start(context.Background())
	svc.Stop()
	assert.Zero(t, pruner.calls())
}
