// internal/checkpoint/store.go
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lifeline/internal/database"
	"lifeline/internal/signal"
)

// Store is the durable checkpoint repository: checkpoint rows, resume
// events and session markers
type Store struct {
	db *database.Database
}

// NewStore creates a checkpoint store backed by the given database
func NewStore(db *database.Database) *Store {
	return &Store{db: db}
}

// Save persists a checkpoint atomically. The per-session number is
// assigned inside the transaction unless explicitly supplied; a supplied
// duplicate is rejected, never overwritten. A failed write leaves no
// partial row committed.
func (s *Store) Save(ctx context.Context, input Input) (*Checkpoint, error) {
	if input.State == nil {
		return nil, fmt.Errorf("save checkpoint: nil state")
	}

	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin checkpoint save: %w", err)
	}
	defer tx.Rollback()

	number := input.Number
	if number == 0 {
		err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(checkpoint_number), 0) + 1 FROM checkpoints WHERE session_id = ?",
			input.SessionID).Scan(&number)
		if err != nil {
			return nil, fmt.Errorf("next checkpoint number: %w", err)
		}
	}

	cp := &Checkpoint{
		ID:        GenerateID(),
		SessionID: input.SessionID,
		Number:    number,
		CreatedAt: time.Now(),
		Trigger:   input.Trigger,
		RiskLevel: input.RiskLevel,
		State:     *input.State,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints
		(id, session_id, checkpoint_number, created_at, trigger_type, risk_level,
		 conversation_blob, task_blob, file_blob, tool_blob, signals_blob, preferences_blob, restored)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		cp.ID, cp.SessionID, cp.Number, cp.CreatedAt.Unix(), string(cp.Trigger), string(cp.RiskLevel),
		cp.State.Conversation, cp.State.Task, cp.State.File, cp.State.Tool, cp.State.Signals, cp.State.Preferences)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("checkpoint %d for session %s: %w", number, input.SessionID, ErrDuplicateNumber)
		}
		return nil, fmt.Errorf("insert checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkpoint: %w", err)
	}
	return cp, nil
}

// Get retrieves a checkpoint by ID
func (s *Store) Get(ctx context.Context, id string) (*Checkpoint, error) {
	row := s.db.DB().QueryRowContext(ctx, selectCheckpoint+" WHERE id = ?", id)

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint %s: %w", id, ErrNotFound)
	}
	return cp, err
}

// GetMostRecent returns a session's newest checkpoint, or nil when the
// session has none
func (s *Store) GetMostRecent(ctx context.Context, sessionID string) (*Checkpoint, error) {
	row := s.db.DB().QueryRowContext(ctx,
		selectCheckpoint+" WHERE session_id = ? ORDER BY checkpoint_number DESC LIMIT 1", sessionID)

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

// ListBySession returns a session's checkpoints ordered by number.
// Blobs are not loaded; use Get for full state.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]Checkpoint, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, session_id, checkpoint_number, created_at, trigger_type, risk_level, restored, restored_at
		FROM checkpoints WHERE session_id = ? ORDER BY checkpoint_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var createdAt int64
		var restoredAt sql.NullInt64
		var trigger, level string

		err := rows.Scan(&cp.ID, &cp.SessionID, &cp.Number, &createdAt, &trigger, &level, &cp.Restored, &restoredAt)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}

		cp.CreatedAt = time.Unix(createdAt, 0)
		cp.Trigger = TriggerType(trigger)
		cp.RiskLevel = signal.RiskLevel(level)
		cp.RestoredAt = database.TimeFromNull(restoredAt)
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// MarkRestored flips a checkpoint's restored flag
func (s *Store) MarkRestored(ctx context.Context, id string) error {
	result, err := s.db.DB().ExecContext(ctx,
		"UPDATE checkpoints SET restored = 1, restored_at = ? WHERE id = ?", time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("mark restored: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("checkpoint %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordResumeEvent persists a resume event for a checkpoint. Idempotent:
// a checkpoint that already has an event keeps it unchanged.
func (s *Store) RecordResumeEvent(ctx context.Context, event *ResumeEvent) error {
	if event.ID == "" {
		event.ID = GenerateID()
	}
	if event.DetectedAt.IsZero() {
		event.DetectedAt = time.Now()
	}

	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO resume_events (id, checkpoint_id, detected_at, interruption_reason, confidence, fidelity)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM resume_events WHERE checkpoint_id = ?)`,
		event.ID, event.CheckpointID, event.DetectedAt.Unix(), string(event.Reason),
		event.Confidence, event.Fidelity, event.CheckpointID)
	if err != nil {
		return fmt.Errorf("record resume event: %w", err)
	}
	return nil
}

// ResumeEvents returns the resume events recorded for a checkpoint
func (s *Store) ResumeEvents(ctx context.Context, checkpointID string) ([]ResumeEvent, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, checkpoint_id, detected_at, interruption_reason, confidence, fidelity
		FROM resume_events WHERE checkpoint_id = ? ORDER BY detected_at`, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("query resume events: %w", err)
	}
	defer rows.Close()

	var events []ResumeEvent
	for rows.Next() {
		var e ResumeEvent
		var detectedAt int64
		var reason string

		if err := rows.Scan(&e.ID, &e.CheckpointID, &detectedAt, &reason, &e.Confidence, &e.Fidelity); err != nil {
			return nil, fmt.Errorf("scan resume event: %w", err)
		}
		e.DetectedAt = time.Unix(detectedAt, 0)
		e.Reason = InterruptionReason(reason)
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecordSessionStart registers a new session marker. A fresh start
// clears any prior graceful-shutdown marker so the next interruption is
// classified against this run, not the last one.
func (s *Store) RecordSessionStart(ctx context.Context, sessionID string) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO session_markers (session_id, started_at) VALUES (?, ?)
		ON CONFLICT (session_id) DO UPDATE SET started_at = excluded.started_at, ended_at = NULL, end_reason = NULL`,
		sessionID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record session start: %w", err)
	}
	return nil
}

// RecordGracefulShutdown marks a session as having exited cleanly. The
// resume detector reads this marker to rule out a crash.
func (s *Store) RecordGracefulShutdown(ctx context.Context, sessionID, reason string) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO session_markers (session_id, started_at, ended_at, end_reason)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET ended_at = excluded.ended_at, end_reason = excluded.end_reason`,
		sessionID, time.Now().Unix(), time.Now().Unix(), reason)
	if err != nil {
		return fmt.Errorf("record graceful shutdown: %w", err)
	}
	return nil
}

// ShutdownMarker reports whether a graceful-shutdown marker exists for
// the session and when it was recorded
func (s *Store) ShutdownMarker(ctx context.Context, sessionID string) (bool, *time.Time, error) {
	var endedAt sql.NullInt64
	err := s.db.DB().QueryRowContext(ctx,
		"SELECT ended_at FROM session_markers WHERE session_id = ?", sessionID).Scan(&endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("query session marker: %w", err)
	}
	return endedAt.Valid, database.TimeFromNull(endedAt), nil
}

// Cleanup deletes checkpoints (and their resume events) older than the
// retention period and returns the number of checkpoints removed
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()

	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cleanup: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM resume_events WHERE checkpoint_id IN
		(SELECT id FROM checkpoints WHERE created_at < ?)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup resume events: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM checkpoints WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup checkpoints: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return removed, tx.Commit()
}

const selectCheckpoint = `
	SELECT id, session_id, checkpoint_number, created_at, trigger_type, risk_level,
	       conversation_blob, task_blob, file_blob, tool_blob, signals_blob, preferences_blob,
	       restored, restored_at
	FROM checkpoints`

func scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	cp := &Checkpoint{}
	var createdAt int64
	var restoredAt sql.NullInt64
	var trigger, level string

	err := row.Scan(&cp.ID, &cp.SessionID, &cp.Number, &createdAt, &trigger, &level,
		&cp.State.Conversation, &cp.State.Task, &cp.State.File, &cp.State.Tool,
		&cp.State.Signals, &cp.State.Preferences, &cp.Restored, &restoredAt)
	if err != nil {
		return nil, err
	}

	cp.CreatedAt = time.Unix(createdAt, 0)
	cp.Trigger = TriggerType(trigger)
	cp.RiskLevel = signal.RiskLevel(level)
	cp.RestoredAt = database.TimeFromNull(restoredAt)
	return cp, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
