package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/finalstream/pkg/callback"
	"github.com/codeready-toolchain/finalstream/pkg/config"
	"github.com/codeready-toolchain/finalstream/pkg/format"
	"github.com/codeready-toolchain/finalstream/test/util"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.DefaultLedgerConfig()
	cfg.Enabled = true
	cfg.DatabaseURL = util.SetupTestSchema(t)

	store, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func report(conn string, started time.Time) callback.RunReport {
	return callback.RunReport{
		RunID:           uuid.NewString(),
		ConnectionID:    conn,
		Transport:       format.KindSocket,
		Prompts:         1,
		Triggered:       true,
		ForwardedTokens: 3,
		Records:         2,
		AnswerPreview:   " Berlin.",
		StartedAt:       started,
		FinishedAt:      started.Add(time.Second),
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	first := report("conn-a", base)
	second := report("conn-a", base.Add(time.Minute))
	second.Triggered = false
	second.Abandoned = true
	second.Error = "socket closed"
	other := report("conn-b", base.Add(2*time.Minute))

	for _, r := range []callback.RunReport{first, second, other} {
		require.NoError(t, store.Record(ctx, r))
	}

	runs, err := store.Recent(ctx, "conn-a", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, second.RunID, runs[0].ID)
	assert.True(t, runs[0].Abandoned)
	assert.False(t, runs[0].Triggered)
	assert.Equal(t, "socket closed", runs[0].Error)

	assert.Equal(t, first.RunID, runs[1].ID)
	assert.Equal(t, format.KindSocket, runs[1].Transport)
	assert.Equal(t, 3, runs[1].ForwardedTokens)
	assert.Equal(t, 2, runs[1].Records)
	assert.Equal(t, " Berlin.", runs[1].Answer)
	assert.Empty(t, runs[1].Error)
	assert.True(t, first.StartedAt.Equal(runs[1].StartedAt))

	all, err := store.Recent(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, other.RunID, all[0].ID)
}

func TestStore_RecordIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := report("conn-a", time.Now().UTC())
	require.NoError(t, store.Record(ctx, r))
	require.NoError(t, store.Record(ctx, r))

	runs, err := store.Recent(ctx, "conn-a", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStore_DeleteFinishedBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := report("conn-a", now.Add(-48*time.Hour))
	recent := report("conn-a", now.Add(-time.Hour))
	require.NoError(t, store.Record(ctx, old))
	require.NoError(t, store.Record(ctx, recent))

	n, err := store.DeleteFinishedBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := store.Recent(ctx, "conn-a", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, recent.RunID, runs[0].ID)

	n, err = store.DeleteFinishedBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_Report(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Report detaches from the caller's cancellation.
	r := report("conn-a", time.Now().UTC())
	store.Report(ctx, r)
	// Invalid ids are logged, not propagated.
	store.Report(ctx, callback.RunReport{RunID: "not-a-uuid"})

	runs, err := store.Recent(context.Background(), "conn-a", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, r.RunID, runs[0].ID)
}

func TestStore_Errors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Record(ctx, callback.RunReport{RunID: "bogus"})
	assert.ErrorContains(t, err, "invalid run id")

	_, err = store.Recent(ctx, "", 0)
	assert.Error(t, err)
}

func TestStore_Health(t *testing.T) {
	store := newTestStore(t)

	health, err := store.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, config.DefaultLedgerConfig().MaxOpenConns, health.MaxOpenConns)

	require.NoError(t, store.Close())
	health, err = store.Health(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "unhealthy", health.Status)
}

func TestOpen_MigrationsAreRepeatable(t *testing.T) {
	cfg := config.DefaultLedgerConfig()
	cfg.Enabled = true
	cfg.DatabaseURL = util.SetupTestSchema(t)

	for range 2 {
		store, err := Open(context.Background(), cfg)
		require.NoError(t, err)
		_, err = store.Recent(context.Background(), "", 1)
		require.NoError(t, err)
		require.NoError(t, store.Close())
	}
}
