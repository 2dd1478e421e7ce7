// Package usagestore persists per-attempt usage records to PostgreSQL for
// dashboards and billing reconciliation. The in-process ledger stays the
// source of truth for routing decisions; this archive is observability only.
package usagestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttemptRecord is one archived engine attempt.
type AttemptRecord struct {
	ID            uuid.UUID
	RequestID     string
	EngineID      string
	Capability    string
	Success       bool
	LatencyMs     int64
	EstimatedCost float64
	Metered       bool
	ErrorMessage  string
	CreatedAt     time.Time
}

// EngineSummary aggregates archived attempts for one engine.
type EngineSummary struct {
	EngineID     string
	Attempts     int64
	Failures     int64
	TotalCost    float64
	MeteredCalls int64
}

// Store archives attempt records in PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore creates a usage archive backed by the given database
func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// InitSchema creates the archive table when it does not exist
func (s *Store) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS engine_attempts (
			id UUID PRIMARY KEY,
			request_id TEXT NOT NULL,
			engine_id TEXT NOT NULL,
			capability TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			latency_ms BIGINT NOT NULL,
			estimated_cost DOUBLE PRECISION NOT NULL,
			metered BOOLEAN NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create engine_attempts table: %w", err)
	}
	return nil
}

// RecordAttempt inserts one attempt record
func (s *Store) RecordAttempt(ctx context.Context, rec AttemptRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO engine_attempts
		(id, request_id, engine_id, capability, success, latency_ms, estimated_cost, metered, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.RequestID, rec.EngineID, rec.Capability, rec.Success,
		rec.LatencyMs, rec.EstimatedCost, rec.Metered, rec.ErrorMessage, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert attempt record: %w", err)
	}

	return nil
}

// SummaryByEngine aggregates archived attempts per engine since a cutoff
func (s *Store) SummaryByEngine(ctx context.Context, since time.Time) ([]EngineSummary, error) {
	query := `
		SELECT engine_id,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE NOT success),
		       COALESCE(SUM(estimated_cost), 0),
		       COUNT(*) FILTER (WHERE metered)
		FROM engine_attempts
		WHERE created_at >= $1
		GROUP BY engine_id
		ORDER BY engine_id
	`

	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query engine summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]EngineSummary, 0)
	for rows.Next() {
		var sum EngineSummary
		if err := rows.Scan(&sum.EngineID, &sum.Attempts, &sum.Failures, &sum.TotalCost, &sum.MeteredCalls); err != nil {
			return nil, fmt.Errorf("failed to scan engine summary: %w", err)
		}
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return summaries, nil
}

// CleanupOldData removes archived attempts older than the retention window.
// Should be called periodically to keep the table size manageable.
func (s *Store) CleanupOldData(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `DELETE FROM engine_attempts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old attempt records: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info("cleaned up old attempt records",
		zap.Int64("rows_deleted", rowsAffected),
		zap.Time("cutoff", cutoff))

	return rowsAffected, nil
}

// StartCleanupWorker runs CleanupOldData on an interval until the context is
// cancelled
func (s *Store) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started usage archive cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("retention", retention))

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupOldData(ctx, retention); err != nil {
				s.logger.Error("failed to cleanup old attempt records", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("stopping usage archive cleanup worker")
			return
		}
	}
}
