// internal/checkpoint/manager.go
package checkpoint

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"lifeline/internal/config"
	"lifeline/internal/signal"
	"lifeline/internal/state"
)

// StateProvider supplies a consistent point-in-time view of session
// state. Called exactly once per checkpoint so all six categories come
// from the same view.
type StateProvider interface {
	CaptureState() (*state.SessionState, error)
}

// Result reports the outcome of one trigger evaluation
type Result struct {
	Created      bool
	CheckpointID string
	Number       int64
	Trigger      TriggerType
}

// Manager evaluates trigger conditions and orchestrates checkpoint
// creation. Owns the transient trigger counters; single active session.
type Manager struct {
	store    *Store
	codec    *Codec
	cfg      config.Triggers
	provider StateProvider

	// mu guards the counters and serializes checkpoint writes, so at
	// most one write is in flight and resets are atomic
	mu        sync.Mutex
	toolCalls int
	lastReset time.Time
}

// NewManager creates a checkpoint manager
func NewManager(store *Store, codec *Codec, cfg config.Triggers, provider StateProvider) *Manager {
	return &Manager{
		store:     store,
		codec:     codec,
		cfg:       cfg,
		provider:  provider,
		lastReset: time.Now(),
	}
}

// NoteToolCall increments the tool-calls-since-last-checkpoint counter
func (m *Manager) NoteToolCall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls++
}

// Counters returns the current trigger counters
func (m *Manager) Counters() (toolCalls int, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toolCalls, time.Since(m.lastReset)
}

// evaluate returns the highest-priority trigger that fired, if any.
// No I/O: this runs on every signal tick.
func (m *Manager) evaluate(snapshot signal.Snapshot) (TriggerType, bool) {
	switch snapshot.RiskLevel {
	case signal.RiskDanger:
		return TriggerDangerZone, true
	case signal.RiskWarning:
		return TriggerWarningZone, true
	}
	if m.toolCalls >= m.cfg.ToolCallInterval {
		return TriggerToolCallInterval, true
	}
	if time.Since(m.lastReset) >= m.cfg.TimeInterval {
		return TriggerTimeInterval, true
	}
	return "", false
}

// AutoCheckpoint is the single entry point the host runtime calls each
// tick. It evaluates the triggers and, if any fires, synchronously
// builds and persists one checkpoint recorded with the highest-priority
// trigger. On success both counters reset regardless of trigger origin,
// which suppresses duplicate near-simultaneous checkpoints. Failures
// leave the counters intact so the next evaluation retries.
func (m *Manager) AutoCheckpoint(ctx context.Context, sessionID string, snapshot signal.Snapshot) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trigger, fired := m.evaluate(snapshot)
	if !fired {
		return Result{}, nil
	}

	cp, err := m.create(ctx, sessionID, trigger, snapshot.RiskLevel)
	if err != nil {
		log.Printf("[checkpoint] %s trigger for session %s failed: %v", trigger, sessionID, err)
		return Result{}, err
	}

	m.toolCalls = 0
	m.lastReset = time.Now()

	log.Printf("[checkpoint] saved #%d for session %s (trigger=%s, risk=%s)", cp.Number, sessionID, trigger, snapshot.RiskLevel)
	return Result{Created: true, CheckpointID: cp.ID, Number: cp.Number, Trigger: trigger}, nil
}

// CheckpointNow creates a checkpoint unconditionally, outside the
// trigger policy. Counters still reset on success.
func (m *Manager) CheckpointNow(ctx context.Context, sessionID string, level signal.RiskLevel) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.create(ctx, sessionID, TriggerManual, level)
	if err != nil {
		return Result{}, err
	}

	m.toolCalls = 0
	m.lastReset = time.Now()
	return Result{Created: true, CheckpointID: cp.ID, Number: cp.Number, Trigger: TriggerManual}, nil
}

// create captures, compresses and persists one checkpoint within the
// configured write budget, retrying the write once on failure
func (m *Manager) create(ctx context.Context, sessionID string, trigger TriggerType, level signal.RiskLevel) (*Checkpoint, error) {
	captured, err := m.provider.CaptureState()
	if err != nil {
		return nil, fmt.Errorf("capture state: %w", err)
	}
	captured.Signals.LevelAtSave = string(level)

	compressed, err := m.codec.Compress(captured)
	if err != nil {
		return nil, err
	}

	input := Input{
		SessionID: sessionID,
		Trigger:   trigger,
		RiskLevel: level,
		State:     compressed,
	}

	writeCtx := ctx
	if m.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, m.cfg.WriteTimeout)
		defer cancel()
	}

	cp, err := m.store.Save(writeCtx, input)
	if err == nil {
		return cp, nil
	}

	// One retry with a short backoff before abandoning until the next
	// trigger evaluation
	log.Printf("[checkpoint] write for session %s failed, retrying: %v", sessionID, err)
	select {
	case <-writeCtx.Done():
		return nil, fmt.Errorf("checkpoint write timed out: %w", writeCtx.Err())
	case <-time.After(100 * time.Millisecond):
	}

	cp, err = m.store.Save(writeCtx, input)
	if err != nil {
		return nil, fmt.Errorf("checkpoint write failed after retry: %w", err)
	}
	return cp, nil
}
