// internal/resume/restorer.go
package resume

import (
	"context"
	"fmt"
	"log"

	"lifeline/internal/checkpoint"
	"lifeline/internal/state"
)

// Restored is the reconstructed session state. Categories that failed to
// decompress are nil; Fidelity is the fraction that survived.
type Restored struct {
	CheckpointID string
	Conversation *state.ConversationState
	Task         *state.TaskState
	File         *state.FileState
	Tool         *state.ToolState
	Signals      *state.SignalState
	Preferences  *state.PreferenceState
	Failed       []state.Category
	Fidelity     float64
}

// Restorer reconstructs checkpointed state into the categories the host
// runtime expects
type Restorer struct {
	store *checkpoint.Store
	codec *checkpoint.Codec
}

// NewRestorer creates a session restorer
func NewRestorer(store *checkpoint.Store, codec *checkpoint.Codec) *Restorer {
	return &Restorer{store: store, codec: codec}
}

// RestoreState decompresses each of the six categories independently.
// One category failing never aborts the others; the failure is recorded
// in the result and reflected in fidelity.
func (r *Restorer) RestoreState(ctx context.Context, checkpointID string) (*Restored, error) {
	cp, err := r.store.Get(ctx, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("restore state: %w", err)
	}
	return r.reconstruct(cp), nil
}

func (r *Restorer) reconstruct(cp *checkpoint.Checkpoint) *Restored {
	restored := &Restored{CheckpointID: cp.ID}
	succeeded := 0

	for _, category := range state.Categories() {
		blob := cp.State.Blob(category)

		var err error
		switch category {
		case state.CategoryConversation:
			var v state.ConversationState
			if err = r.codec.Decompress(category, blob, &v); err == nil {
				restored.Conversation = &v
			}
		case state.CategoryTask:
			var v state.TaskState
			if err = r.codec.Decompress(category, blob, &v); err == nil {
				restored.Task = &v
			}
		case state.CategoryFile:
			var v state.FileState
			if err = r.codec.Decompress(category, blob, &v); err == nil {
				restored.File = &v
			}
		case state.CategoryTool:
			var v state.ToolState
			if err = r.codec.Decompress(category, blob, &v); err == nil {
				restored.Tool = &v
			}
		case state.CategorySignals:
			var v state.SignalState
			if err = r.codec.Decompress(category, blob, &v); err == nil {
				restored.Signals = &v
			}
		case state.CategoryPreferences:
			var v state.PreferenceState
			if err = r.codec.Decompress(category, blob, &v); err == nil {
				restored.Preferences = &v
			}
		}

		if err != nil {
			log.Printf("[resume] category %s of checkpoint %s unrecoverable: %v", category, cp.ID, err)
			restored.Failed = append(restored.Failed, category)
			continue
		}
		succeeded++
	}

	restored.Fidelity = float64(succeeded) / float64(len(state.Categories()))
	return restored
}

// RestoreAndMark restores the checkpoint, persists the resume event and
// flips the restored flag. Idempotent: a checkpoint already marked
// restored is returned as-is with no new resume event.
func (r *Restorer) RestoreAndMark(ctx context.Context, checkpointID string, reason checkpoint.InterruptionReason, confidence float64) (*Restored, error) {
	cp, err := r.store.Get(ctx, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("restore and mark: %w", err)
	}

	restored := r.reconstruct(cp)
	if cp.Restored {
		return restored, nil
	}

	event := &checkpoint.ResumeEvent{
		CheckpointID: cp.ID,
		Reason:       reason,
		Confidence:   confidence,
		Fidelity:     restored.Fidelity,
	}
	if err := r.store.RecordResumeEvent(ctx, event); err != nil {
		return nil, err
	}
	if err := r.store.MarkRestored(ctx, cp.ID); err != nil {
		return nil, err
	}

	log.Printf("[resume] restored checkpoint #%d for session %s (reason=%s, fidelity=%.2f)", cp.Number, cp.SessionID, reason, restored.Fidelity)
	return restored, nil
}
