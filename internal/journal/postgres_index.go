package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id             BIGSERIAL    PRIMARY KEY,
    session_id     TEXT         NOT NULL UNIQUE,
    provider_id    TEXT         NOT NULL DEFAULT '',
    started_at     TIMESTAMPTZ  NOT NULL,
    ended_at       TIMESTAMPTZ  NOT NULL,
    final_count    INTEGER      NOT NULL DEFAULT 0,
    interim_count  INTEGER      NOT NULL DEFAULT 0,
    dropped_count  INTEGER      NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions (started_at);
`

// PostgresIndex is the optional additive Session Index: a searchable record
// of every session's identity and counters, independent of the per-session
// journal files. It implements Index.
//
// A PostgresIndex is entirely additive — its absence never changes
// journaling behavior, and a failed RecordSession call is logged by the
// caller rather than propagated as a session-teardown failure.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresIndex connects to dsn and ensures the sessions table exists.
func NewPostgresIndex(ctx context.Context, dsn string) (*PostgresIndex, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: postgres index: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: postgres index: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, ddlSessions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: postgres index: migrate: %w", err)
	}

	return &PostgresIndex{pool: pool}, nil
}

// RecordSession implements Index. A session_id collision (reused id after a
// crash-restart) overwrites the prior row rather than failing.
func (p *PostgresIndex) RecordSession(ctx context.Context, s Summary) error {
	const q = `
		INSERT INTO sessions
		    (session_id, provider_id, started_at, ended_at, final_count, interim_count, dropped_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
		    provider_id   = EXCLUDED.provider_id,
		    ended_at      = EXCLUDED.ended_at,
		    final_count   = EXCLUDED.final_count,
		    interim_count = EXCLUDED.interim_count,
		    dropped_count = EXCLUDED.dropped_count`

	_, err := p.pool.Exec(ctx, q, s.SessionID, s.ProviderID, s.StartedAt, s.EndedAt, s.FinalCount, s.InterimCount, s.DroppedCount)
	if err != nil {
		return fmt.Errorf("journal: postgres index: record session: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *PostgresIndex) Close() {
	p.pool.Close()
}
