// Package ledger records a summary of every finished run in PostgreSQL.
package ledger

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql

	"github.com/codeready-toolchain/finalstream/pkg/callback"
	"github.com/codeready-toolchain/finalstream/pkg/config"
	"github.com/codeready-toolchain/finalstream/pkg/format"
)

// reportTimeout bounds one insert issued from Report.
const reportTimeout = 5 * time.Second

// Run is one row of answer_runs.
type Run struct {
	ID              string      `json:"id"`
	ConnectionID    string      `json:"connection_id"`
	Transport       format.Kind `json:"transport"`
	Prompts         int         `json:"prompts"`
	Triggered       bool        `json:"triggered"`
	ForwardedTokens int         `json:"forwarded_tokens"`
	Records         int         `json:"records"`
	Answer          string      `json:"answer"`
	Abandoned       bool        `json:"abandoned"`
	Error           string      `json:"error,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at"`
}

// Store writes and reads run summaries.
type Store struct {
	db *stdsql.DB
}

// Open connects to the ledger database, applies pending migrations and
// returns a Store.
func Open(ctx context.Context, cfg *config.LedgerConfig) (*Store, error) {
	db, err := stdsql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return NewStore(db), nil
}

// NewStore wraps an open, migrated database.
func NewStore(db *stdsql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *stdsql.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts the summary of a finished run. Recording the same run id
// twice is a no-op.
func (s *Store) Record(ctx context.Context, r callback.RunReport) error {
	id, err := uuid.Parse(r.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", r.RunID, err)
	}
	var runErr stdsql.NullString
	if r.Error != "" {
		runErr = stdsql.NullString{String: r.Error, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO answer_runs (
			id, connection_id, transport, prompts, triggered, forwarded_tokens,
			records, answer, abandoned, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		id, r.ConnectionID, string(r.Transport), r.Prompts, r.Triggered, r.ForwardedTokens,
		r.Records, r.AnswerPreview, r.Abandoned, runErr, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}
	return nil
}

// Report implements callback.Reporter. Failures are logged and never
// reach the stream.
func (s *Store) Report(ctx context.Context, r callback.RunReport) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	if err := s.Record(ctx, r); err != nil {
		slog.Error("Failed to record run", "run_id", r.RunID, "connection_id", r.ConnectionID, "error", err)
	}
}

// Recent returns the latest runs of a connection, newest first. An empty
// connectionID lists runs of every connection.
func (s *Store) Recent(ctx context.Context, connectionID string, limit int) ([]Run, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, connection_id, transport, prompts, triggered, forwarded_tokens,
		       records, answer, abandoned, error, started_at, finished_at
		FROM answer_runs
		WHERE $1 = '' OR connection_id = $1
		ORDER BY started_at DESC
		LIMIT $2`, connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			id        uuid.UUID
			transport string
			runErr    stdsql.NullString
		)
		if err := rows.Scan(&id, &r.ConnectionID, &transport, &r.Prompts, &r.Triggered, &r.ForwardedTokens,
			&r.Records, &r.Answer, &r.Abandoned, &runErr, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.ID = id.String()
		r.Transport = format.Kind(transport)
		r.Error = runErr.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// DeleteFinishedBefore removes runs that finished before cutoff and returns
// how many were removed.
func (s *Store) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM answer_runs WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted runs: %w", err)
	}
	return n, nil
}
