// internal/checkpoint/store_test.go
package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"lifeline/internal/database"
	"lifeline/internal/signal"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func compressedFixture(t *testing.T) *CompressedState {
	t.Helper()
	codec := NewCodec(3)
	compressed, err := codec.Compress(sampleState())
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	return compressed
}

func TestStore_SaveAssignsNumbers(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	compressed := compressedFixture(t)

	for i := 1; i <= 3; i++ {
		cp, err := store.Save(ctx, Input{
			SessionID: "s-1",
			Trigger:   TriggerTimeInterval,
			RiskLevel: signal.RiskSafe,
			State:     compressed,
		})
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if cp.Number != int64(i) {
			t.Errorf("Expected checkpoint number %d, got %d", i, cp.Number)
		}
	}

	// Numbers are per session
	cp, err := store.Save(ctx, Input{
		SessionID: "s-2",
		Trigger:   TriggerDangerZone,
		RiskLevel: signal.RiskDanger,
		State:     compressed,
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if cp.Number != 1 {
		t.Errorf("Expected checkpoint number 1 for new session, got %d", cp.Number)
	}
}

func TestStore_SaveRejectsDuplicateNumber(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	compressed := compressedFixture(t)

	input := Input{
		SessionID: "s-dup",
		Number:    7,
		Trigger:   TriggerManual,
		RiskLevel: signal.RiskSafe,
		State:     compressed,
	}

	if _, err := store.Save(ctx, input); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	_, err := store.Save(ctx, input)
	if !errors.Is(err, ErrDuplicateNumber) {
		t.Errorf("Expected ErrDuplicateNumber, got %v", err)
	}

	// The original row is untouched
	checkpoints, err := store.ListBySession(ctx, "s-dup")
	if err != nil {
		t.Fatalf("ListBySession failed: %v", err)
	}
	if len(checkpoints) != 1 {
		t.Errorf("Expected 1 checkpoint, got %d", len(checkpoints))
	}
}

func TestStore_GetRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	saved, err := store.Save(ctx, Input{
		SessionID: "s-get",
		Trigger:   TriggerDangerZone,
		RiskLevel: signal.RiskDanger,
		State:     compressedFixture(t),
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.Trigger != TriggerDangerZone {
		t.Errorf("Expected trigger danger_zone, got %s", got.Trigger)
	}
	if got.RiskLevel != signal.RiskDanger {
		t.Errorf("Expected risk danger, got %s", got.RiskLevel)
	}
	if len(got.State.Task) == 0 {
		t.Error("Expected task blob to round trip")
	}
	if got.Restored {
		t.Error("New checkpoint should not be marked restored")
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_GetMostRecent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	// Absence is a nil result, not an error
	cp, err := store.GetMostRecent(ctx, "s-empty")
	if err != nil {
		t.Fatalf("GetMostRecent failed: %v", err)
	}
	if cp != nil {
		t.Error("Expected nil for session without checkpoints")
	}

	compressed := compressedFixture(t)
	for i := 0; i < 3; i++ {
		if _, err := store.Save(ctx, Input{
			SessionID: "s-recent",
			Trigger:   TriggerTimeInterval,
			RiskLevel: signal.RiskSafe,
			State:     compressed,
		}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	cp, err = store.GetMostRecent(ctx, "s-recent")
	if err != nil {
		t.Fatalf("GetMostRecent failed: %v", err)
	}
	if cp == nil || cp.Number != 3 {
		t.Fatalf("Expected checkpoint number 3, got %+v", cp)
	}
}

func TestStore_MarkRestored(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	saved, err := store.Save(ctx, Input{
		SessionID: "s-mark",
		Trigger:   TriggerManual,
		RiskLevel: signal.RiskSafe,
		State:     compressedFixture(t),
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.MarkRestored(ctx, saved.ID); err != nil {
		t.Fatalf("MarkRestored failed: %v", err)
	}

	got, err := store.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Restored || got.RestoredAt == nil {
		t.Error("Expected checkpoint to be marked restored with timestamp")
	}

	if err := store.MarkRestored(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing checkpoint, got %v", err)
	}
}

func TestStore_RecordResumeEventIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	saved, err := store.Save(ctx, Input{
		SessionID: "s-ev",
		Trigger:   TriggerDangerZone,
		RiskLevel: signal.RiskDanger,
		State:     compressedFixture(t),
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	event := &ResumeEvent{
		CheckpointID: saved.ID,
		Reason:       ReasonCrash,
		Confidence:   0.92,
		Fidelity:     1.0,
	}
	if err := store.RecordResumeEvent(ctx, event); err != nil {
		t.Fatalf("RecordResumeEvent failed: %v", err)
	}

	// Second record for the same checkpoint is a no-op
	second := &ResumeEvent{CheckpointID: saved.ID, Reason: ReasonUnknown, Confidence: 0.3, Fidelity: 0.5}
	if err := store.RecordResumeEvent(ctx, second); err != nil {
		t.Fatalf("RecordResumeEvent failed: %v", err)
	}

	events, err := store.ResumeEvents(ctx, saved.ID)
	if err != nil {
		t.Fatalf("ResumeEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected exactly 1 resume event, got %d", len(events))
	}
	if events[0].Reason != ReasonCrash {
		t.Errorf("Expected original crash event preserved, got %s", events[0].Reason)
	}
}

func TestStore_ShutdownMarker(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	marked, _, err := store.ShutdownMarker(ctx, "s-marker")
	if err != nil {
		t.Fatalf("ShutdownMarker failed: %v", err)
	}
	if marked {
		t.Error("Expected no marker for unknown session")
	}

	if err := store.RecordSessionStart(ctx, "s-marker"); err != nil {
		t.Fatalf("RecordSessionStart failed: %v", err)
	}

	marked, _, err = store.ShutdownMarker(ctx, "s-marker")
	if err != nil {
		t.Fatalf("ShutdownMarker failed: %v", err)
	}
	if marked {
		t.Error("Session start alone should not count as graceful shutdown")
	}

	if err := store.RecordGracefulShutdown(ctx, "s-marker", "user exit"); err != nil {
		t.Fatalf("RecordGracefulShutdown failed: %v", err)
	}

	marked, endedAt, err := store.ShutdownMarker(ctx, "s-marker")
	if err != nil {
		t.Fatalf("ShutdownMarker failed: %v", err)
	}
	if !marked || endedAt == nil {
		t.Error("Expected graceful shutdown marker with timestamp")
	}
}

func TestStore_Cleanup(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	old, err := store.Save(ctx, Input{
		SessionID: "s-old",
		Trigger:   TriggerTimeInterval,
		RiskLevel: signal.RiskSafe,
		State:     compressedFixture(t),
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Age the checkpoint past retention
	cutoff := time.Now().AddDate(0, 0, -40).Unix()
	if _, err := store.db.DB().Exec("UPDATE checkpoints SET created_at = ? WHERE id = ?", cutoff, old.ID); err != nil {
		t.Fatalf("Backdate failed: %v", err)
	}
	if err := store.RecordResumeEvent(ctx, &ResumeEvent{CheckpointID: old.ID, Reason: ReasonCrash, Confidence: 0.9, Fidelity: 1}); err != nil {
		t.Fatalf("RecordResumeEvent failed: %v", err)
	}

	fresh, err := store.Save(ctx, Input{
		SessionID: "s-old",
		Trigger:   TriggerTimeInterval,
		RiskLevel: signal.RiskSafe,
		State:     compressedFixture(t),
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	removed, err := store.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 checkpoint removed, got %d", removed)
	}

	if _, err := store.Get(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Error("Expected old checkpoint to be deleted")
	}
	if _, err := store.Get(ctx, fresh.ID); err != nil {
		t.Errorf("Fresh checkpoint should survive cleanup: %v", err)
	}

	events, err := store.ResumeEvents(ctx, old.ID)
	if err != nil {
		t.Fatalf("ResumeEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Error("Expected resume events of deleted checkpoint to be removed")
	}
}
