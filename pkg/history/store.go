// Package history archives finished call sessions and their transcripts
// to Postgres.
package history

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/chirpling-ai/chirpling/pkg/call"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store writes call records. Safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

type StoreOption func(*Store)

func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Open connects to the archive database and applies pending migrations.
func Open(ctx context.Context, dsn string, opts ...StoreOption) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect archive db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping archive db: %w", err)
	}

	s := &Store{pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// CallRecord is one archived call session.
type CallRecord struct {
	ID          uuid.UUID
	SessionID   string
	BotID       string
	StartedAt   time.Time
	EndedAt     time.Time
	DurationSec int
	EndReason   string
}

// ArchiveRequest captures a finished call for archival.
type ArchiveRequest struct {
	SessionID   string
	BotID       string
	StartedAt   time.Time
	EndedAt     time.Time
	DurationSec int
	EndReason   string
	Messages    []call.Message
}

// Archive inserts the record and its transcript in one transaction and
// returns the record id.
func (s *Store) Archive(ctx context.Context, req ArchiveRequest) (uuid.UUID, error) {
	id := uuid.New()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO call_records (id, session_id, bot_id, started_at, ended_at, duration_sec, end_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, req.SessionID, req.BotID, req.StartedAt, req.EndedAt, req.DurationSec, req.EndReason)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert call record: %w", err)
	}

	for i, msg := range req.Messages {
		_, err = tx.Exec(ctx, `
			INSERT INTO call_messages (record_id, seq, role, content, complete, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, i, string(msg.Role), msg.Text, msg.Complete, msg.CreatedAt)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert call message %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit archive tx: %w", err)
	}

	s.logger.Info("call archived",
		"record_id", id,
		"session_id", req.SessionID,
		"bot_id", req.BotID,
		"messages", len(req.Messages),
		"duration_sec", req.DurationSec)
	return id, nil
}

// Recent lists the newest call records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, bot_id, started_at, ended_at, duration_sec, end_reason
		FROM call_records
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	defer rows.Close()

	var records []CallRecord
	for rows.Next() {
		var rec CallRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.BotID, &rec.StartedAt, &rec.EndedAt, &rec.DurationSec, &rec.EndReason); err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Transcript fetches the archived messages of one record in order.
func (s *Store) Transcript(ctx context.Context, recordID uuid.UUID) ([]call.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role, content, complete, created_at
		FROM call_messages
		WHERE record_id = $1
		ORDER BY seq`, recordID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	var msgs []call.Message
	for rows.Next() {
		var (
			role string
			msg  call.Message
		)
		if err := rows.Scan(&role, &msg.Text, &msg.Complete, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		msg.Role = call.Role(role)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if msgs == nil {
		// Distinguish empty transcript from missing record.
		var exists bool
		err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM call_records WHERE id = $1)`, recordID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check record: %w", err)
		}
		if !exists {
			return nil, pgx.ErrNoRows
		}
	}
	return msgs, nil
}
