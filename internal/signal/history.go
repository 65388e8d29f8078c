// internal/signal/history.go
package signal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lifeline/internal/database"
)

// History is the durable, queryable log of risk snapshots per session
type History struct {
	db *database.Database
}

// NewHistory creates a history repository backed by the given database
func NewHistory(db *database.Database) *History {
	return &History{db: db}
}

// Filter narrows a history query. Zero values mean "no constraint".
type Filter struct {
	Since     time.Time
	Until     time.Time
	RiskLevel RiskLevel
}

// Save persists one snapshot, assigning the next per-session sequence
// number inside the transaction
func (h *History) Save(ctx context.Context, snapshot *Snapshot) error {
	return h.SaveBatch(ctx, []*Snapshot{snapshot})
}

// SaveBatch persists many snapshots in a single transaction. Sampling can
// run many times per minute, so one transaction per snapshot is too slow.
// Sequence numbers are assigned sequentially inside the transaction, which
// keeps them strictly monotonic and gap-free under concurrent writers.
func (h *History) SaveBatch(ctx context.Context, snapshots []*Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := h.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signal_snapshots
		(session_id, seq, timestamp, tool_call_count, error_rate, duration_ms, message_count, avg_latency_ms, risk_level)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM signal_snapshots WHERE session_id = ?), ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range snapshots {
		if s.Timestamp.IsZero() {
			s.Timestamp = time.Now()
		}
		_, err := stmt.ExecContext(ctx,
			s.SessionID, s.SessionID, s.Timestamp.Unix(), s.ToolCallCount, s.ErrorRate,
			s.Duration.Milliseconds(), s.MessageCount, float64(s.AvgLatency.Milliseconds()), string(s.RiskLevel))
		if err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Query returns a session's snapshots ordered by sequence number,
// optionally narrowed by time range and risk level
func (h *History) Query(ctx context.Context, sessionID string, filter Filter) ([]Snapshot, error) {
	query := `
		SELECT session_id, seq, timestamp, tool_call_count, error_rate, duration_ms, message_count, avg_latency_ms, risk_level
		FROM signal_snapshots WHERE session_id = ?`
	args := []interface{}{sessionID}

	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since.Unix())
	}
	if !filter.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.Until.Unix())
	}
	if filter.RiskLevel != "" {
		query += " AND risk_level = ?"
		args = append(args, string(filter.RiskLevel))
	}
	query += " ORDER BY seq"

	rows, err := h.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// Latest returns a session's most recent snapshot, or nil when none exist
func (h *History) Latest(ctx context.Context, sessionID string) (*Snapshot, error) {
	rows, err := h.db.DB().QueryContext(ctx, `
		SELECT session_id, seq, timestamp, tool_call_count, error_rate, duration_ms, message_count, avg_latency_ms, risk_level
		FROM signal_snapshots WHERE session_id = ? ORDER BY seq DESC LIMIT 1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	s, err := scanSnapshot(rows)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Cleanup deletes snapshots older than the retention period and returns
// the number removed
func (h *History) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	result, err := h.db.DB().ExecContext(ctx,
		"DELETE FROM signal_snapshots WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup snapshots: %w", err)
	}
	return result.RowsAffected()
}

func scanSnapshot(rows *sql.Rows) (Snapshot, error) {
	var s Snapshot
	var timestamp, durationMs int64
	var latencyMs float64
	var level string

	err := rows.Scan(&s.SessionID, &s.Seq, &timestamp, &s.ToolCallCount, &s.ErrorRate,
		&durationMs, &s.MessageCount, &latencyMs, &level)
	if err != nil {
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}

	s.Timestamp = time.Unix(timestamp, 0)
	s.Duration = time.Duration(durationMs) * time.Millisecond
	s.AvgLatency = time.Duration(latencyMs) * time.Millisecond
	s.RiskLevel = RiskLevel(level)
	return s, nil
}
