package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the conversation_turns table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS conversation_turns (
    id           BIGSERIAL PRIMARY KEY,
    turn_id      BIGINT NOT NULL,
    transcript   TEXT NOT NULL DEFAULT '',
    response     TEXT NOT NULL DEFAULT '',
    outcome      TEXT NOT NULL,
    failed_stage TEXT NOT NULL DEFAULT '',
    latency_ms   BIGINT NOT NULL DEFAULT 0,
    started_at   TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_turns_completed ON conversation_turns(completed_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a Store backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore over the given connection or
// pool. Call [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the conversation_turns table
// and index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Archive implements Store.
func (s *PostgresStore) Archive(ctx context.Context, turn Turn) error {
	const query = `
		INSERT INTO conversation_turns
			(turn_id, transcript, response, outcome, failed_stage, latency_ms, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.Exec(ctx, query,
		int64(turn.ID), turn.Transcript, turn.Response, turn.Outcome,
		turn.FailedStage, turn.Latency.Milliseconds(), turn.StartedAt, turn.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("history: archive turn %d: %w", turn.ID, err)
	}
	return nil
}

// Recent implements Store.
func (s *PostgresStore) Recent(ctx context.Context, n int) ([]Turn, error) {
	if n <= 0 {
		n = DefaultMemCapacity
	}
	const query = `
		SELECT turn_id, transcript, response, outcome, failed_stage, latency_ms, started_at, completed_at
		FROM conversation_turns
		ORDER BY completed_at DESC
		LIMIT $1`
	rows, err := s.db.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var (
			t         Turn
			turnID    int64
			latencyMS int64
		)
		if err := rows.Scan(&turnID, &t.Transcript, &t.Response, &t.Outcome,
			&t.FailedStage, &latencyMS, &t.StartedAt, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("history: scan row: %w", err)
		}
		t.ID = uint64(turnID)
		t.Latency = time.Duration(latencyMS) * time.Millisecond
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate rows: %w", err)
	}
	return out, nil
}
