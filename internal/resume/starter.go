// internal/resume/starter.go
package resume

import (
	"context"
	"fmt"

	"lifeline/internal/checkpoint"
)

// StartResult is handed back to the host runtime at session start
type StartResult struct {
	NeedsResume bool
	Detection   *Detection
	Restored    *Restored
	Prompt      string
}

// Starter is the sole session-start entry point: it composes resume
// detection and state restoration
type Starter struct {
	detector *Detector
	restorer *Restorer
	store    *checkpoint.Store
}

// NewStarter creates a session starter
func NewStarter(detector *Detector, restorer *Restorer, store *checkpoint.Store) *Starter {
	return &Starter{detector: detector, restorer: restorer, store: store}
}

// Start checks whether the session needs resuming and, if so, restores
// the last checkpoint and renders the resume prompt. Returns immediately
// with an empty result when nothing needs resuming. Detection runs
// before the session marker is reset so the classification sees the
// previous run's shutdown evidence.
func (s *Starter) Start(ctx context.Context, sessionID string) (*StartResult, error) {
	detection, err := s.detector.CheckResume(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session start: %w", err)
	}

	result := &StartResult{Detection: detection}

	if detection.ShouldResume {
		restored, err := s.restorer.RestoreAndMark(ctx, detection.LastCheckpoint.ID, detection.Reason, detection.Confidence)
		if err != nil {
			return nil, fmt.Errorf("session start: %w", err)
		}
		result.NeedsResume = true
		result.Restored = restored
		result.Prompt = GeneratePrompt(detection, restored)
	}

	if err := s.store.RecordSessionStart(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("session start: %w", err)
	}

	return result, nil
}
