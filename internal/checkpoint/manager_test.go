// internal/checkpoint/manager_test.go
package checkpoint

import (
	"context"
	"math"
	"testing"
	"time"

	"lifeline/internal/config"
	"lifeline/internal/signal"
	"lifeline/internal/state"
)

type stubProvider struct {
	state    *state.SessionState
	captures int
}

func (p *stubProvider) CaptureState() (*state.SessionState, error) {
	p.captures++
	// Copy so tests can mutate the stub between captures
	copied := *p.state
	return &copied, nil
}

func testTriggers() config.Triggers {
	return config.Triggers{
		ToolCallInterval: 5,
		TimeInterval:     time.Hour,
		WriteTimeout:     5 * time.Second,
	}
}

func testManager(t *testing.T, cfg config.Triggers) (*Manager, *Store, *stubProvider) {
	t.Helper()
	store := testStore(t)
	provider := &stubProvider{state: sampleState()}
	manager := NewManager(store, NewCodec(3), cfg, provider)
	return manager, store, provider
}

func TestManager_NoTriggerNoCheckpoint(t *testing.T) {
	manager, store, provider := testManager(t, testTriggers())
	ctx := context.Background()

	result, err := manager.AutoCheckpoint(ctx, "s-1", signal.Snapshot{RiskLevel: signal.RiskSafe})
	if err != nil {
		t.Fatalf("AutoCheckpoint failed: %v", err)
	}
	if result.Created {
		t.Error("Expected no checkpoint on quiet tick")
	}
	if provider.captures != 0 {
		t.Error("State should not be captured on the non-triggering path")
	}

	checkpoints, _ := store.ListBySession(ctx, "s-1")
	if len(checkpoints) != 0 {
		t.Errorf("Expected 0 checkpoints, got %d", len(checkpoints))
	}
}

func TestManager_DangerTrigger(t *testing.T) {
	manager, _, _ := testManager(t, testTriggers())

	result, err := manager.AutoCheckpoint(context.Background(), "s-1", signal.Snapshot{RiskLevel: signal.RiskDanger})
	if err != nil {
		t.Fatalf("AutoCheckpoint failed: %v", err)
	}
	if !result.Created {
		t.Fatal("Expected checkpoint on danger tick")
	}
	if result.Trigger != TriggerDangerZone {
		t.Errorf("Expected danger_zone trigger, got %s", result.Trigger)
	}
}

func TestManager_DangerOutranksTimeInterval(t *testing.T) {
	// Both danger and time_interval fire on the same tick
	cfg := testTriggers()
	cfg.TimeInterval = time.Nanosecond
	manager, store, _ := testManager(t, cfg)
	ctx := context.Background()

	time.Sleep(time.Millisecond)

	result, err := manager.AutoCheckpoint(ctx, "s-1", signal.Snapshot{RiskLevel: signal.RiskDanger})
	if err != nil {
		t.Fatalf("AutoCheckpoint failed: %v", err)
	}
	if result.Trigger != TriggerDangerZone {
		t.Errorf("Expected danger_zone to win, got %s", result.Trigger)
	}

	// Exactly one checkpoint despite two triggers firing
	checkpoints, _ := store.ListBySession(ctx, "s-1")
	if len(checkpoints) != 1 {
		t.Errorf("Expected exactly 1 checkpoint, got %d", len(checkpoints))
	}
}

func TestManager_ToolCallInterval(t *testing.T) {
	// Interval of 5, six tool calls, no risk signals
	manager, store, _ := testManager(t, testTriggers())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		manager.NoteToolCall()
	}

	result, err := manager.AutoCheckpoint(ctx, "s-1", signal.Snapshot{RiskLevel: signal.RiskSafe})
	if err != nil {
		t.Fatalf("AutoCheckpoint failed: %v", err)
	}
	if !result.Created {
		t.Fatal("Expected checkpoint after exceeding tool call interval")
	}
	if result.Trigger != TriggerToolCallInterval {
		t.Errorf("Expected tool_call_interval trigger, got %s", result.Trigger)
	}

	checkpoints, _ := store.ListBySession(ctx, "s-1")
	if len(checkpoints) != 1 {
		t.Errorf("Expected 1 checkpoint, got %d", len(checkpoints))
	}
}

func TestManager_TimeInterval(t *testing.T) {
	cfg := testTriggers()
	cfg.TimeInterval = 10 * time.Millisecond
	manager, _, _ := testManager(t, cfg)

	time.Sleep(20 * time.Millisecond)

	result, err := manager.AutoCheckpoint(context.Background(), "s-1", signal.Snapshot{RiskLevel: signal.RiskSafe})
	if err != nil {
		t.Fatalf("AutoCheckpoint failed: %v", err)
	}
	if result.Trigger != TriggerTimeInterval {
		t.Errorf("Expected time_interval trigger, got %s", result.Trigger)
	}
}

func TestManager_CountersResetAfterCheckpoint(t *testing.T) {
	manager, _, _ := testManager(t, testTriggers())

	for i := 0; i < 7; i++ {
		manager.NoteToolCall()
	}

	// Danger fires; counters must reset regardless of trigger origin
	if _, err := manager.AutoCheckpoint(context.Background(), "s-1", signal.Snapshot{RiskLevel: signal.RiskDanger}); err != nil {
		t.Fatalf("AutoCheckpoint failed: %v", err)
	}

	toolCalls, elapsed := manager.Counters()
	if toolCalls != 0 {
		t.Errorf("Expected tool call counter 0 after checkpoint, got %d", toolCalls)
	}
	if elapsed > time.Second {
		t.Errorf("Expected elapsed timer reset, got %s", elapsed)
	}

	// Next quiet tick must not checkpoint again
	result, err := manager.AutoCheckpoint(context.Background(), "s-1", signal.Snapshot{RiskLevel: signal.RiskSafe})
	if err != nil {
		t.Fatalf("AutoCheckpoint failed: %v", err)
	}
	if result.Created {
		t.Error("Expected no duplicate checkpoint after counter reset")
	}
}

func TestManager_CompressionFailureLeavesNoRow(t *testing.T) {
	manager, store, provider := testManager(t, testTriggers())
	ctx := context.Background()

	// NaN cannot be marshaled, so the signals category fails to compress
	provider.state.Signals.Recent = []state.SignalPoint{{ErrorRate: math.NaN()}}

	_, err := manager.AutoCheckpoint(ctx, "s-1", signal.Snapshot{RiskLevel: signal.RiskDanger})
	if err == nil {
		t.Fatal("Expected compression failure")
	}

	checkpoints, _ := store.ListBySession(ctx, "s-1")
	if len(checkpoints) != 0 {
		t.Errorf("Expected no checkpoint row after compression failure, got %d", len(checkpoints))
	}

	// Counters intact so the next evaluation retries
	provider.state.Signals.Recent = nil
	result, err := manager.AutoCheckpoint(ctx, "s-1", signal.Snapshot{RiskLevel: signal.RiskDanger})
	if err != nil {
		t.Fatalf("Retry AutoCheckpoint failed: %v", err)
	}
	if !result.Created {
		t.Error("Expected checkpoint on retry after failure")
	}
}

func TestManager_CheckpointNow(t *testing.T) {
	manager, store, _ := testManager(t, testTriggers())
	ctx := context.Background()

	manager.NoteToolCall()
	result, err := manager.CheckpointNow(ctx, "s-1", signal.RiskSafe)
	if err != nil {
		t.Fatalf("CheckpointNow failed: %v", err)
	}
	if result.Trigger != TriggerManual {
		t.Errorf("Expected manual trigger, got %s", result.Trigger)
	}

	toolCalls, _ := manager.Counters()
	if toolCalls != 0 {
		t.Error("Expected counters reset after manual checkpoint")
	}

	cp, err := store.Get(ctx, result.CheckpointID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cp.Number != 1 {
		t.Errorf("Expected checkpoint number 1, got %d", cp.Number)
	}
}

func TestManager_SequentialNumbering(t *testing.T) {
	cfg := testTriggers()
	manager, store, _ := testManager(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := manager.AutoCheckpoint(ctx, "s-seq", signal.Snapshot{RiskLevel: signal.RiskDanger}); err != nil {
			t.Fatalf("AutoCheckpoint %d failed: %v", i, err)
		}
	}

	checkpoints, err := store.ListBySession(ctx, "s-seq")
	if err != nil {
		t.Fatalf("ListBySession failed: %v", err)
	}
	if len(checkpoints) != 5 {
		t.Fatalf("Expected 5 checkpoints, got %d", len(checkpoints))
	}
	for i, cp := range checkpoints {
		if cp.Number != int64(i+1) {
			t.Errorf("Expected number %d, got %d", i+1, cp.Number)
		}
	}
}
