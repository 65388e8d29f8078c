// internal/resume/detector.go
package resume

import (
	"context"
	"fmt"
	"time"

	"lifeline/internal/checkpoint"
	"lifeline/internal/config"
)

// Detection is the outcome of inspecting a session's checkpoint history
// at startup
type Detection struct {
	ShouldResume        bool
	LastCheckpoint      *checkpoint.Checkpoint
	Reason              checkpoint.InterruptionReason
	Confidence          float64
	TimeSinceCheckpoint time.Duration
}

// Detector decides, on session start, whether the prior session ended
// abnormally and how confidently that can be said
type Detector struct {
	store *checkpoint.Store
	cfg   config.Resume
}

// NewDetector creates a resume detector
func NewDetector(store *checkpoint.Store, cfg config.Resume) *Detector {
	return &Detector{store: store, cfg: cfg}
}

// CheckResume inspects the session's most recent checkpoint. An
// unrestored checkpoint indicates resume; the interruption reason is a
// heuristic classification, never a guarantee.
func (d *Detector) CheckResume(ctx context.Context, sessionID string) (*Detection, error) {
	cp, err := d.store.GetMostRecent(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("check resume: %w", err)
	}
	if cp == nil || cp.Restored {
		return &Detection{}, nil
	}

	gap := time.Since(cp.CreatedAt)

	hasMarker, _, err := d.store.ShutdownMarker(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("check resume: %w", err)
	}

	reason, confidence := d.classify(gap, hasMarker)

	return &Detection{
		ShouldResume:        true,
		LastCheckpoint:      cp,
		Reason:              reason,
		Confidence:          confidence,
		TimeSinceCheckpoint: gap,
	}, nil
}

// classify maps the gap since checkpoint and the shutdown marker to an
// interruption reason. Crash confidence decays linearly from 0.95 for an
// immediate restart to 0.85 at the normal-exit window; a reason that
// cannot be pinned down is reported as unknown with low confidence
// rather than guessed.
func (d *Detector) classify(gap time.Duration, hasMarker bool) (checkpoint.InterruptionReason, float64) {
	if hasMarker {
		return checkpoint.ReasonManualExit, 0.98
	}
	if gap > d.cfg.IdleThreshold {
		return checkpoint.ReasonTimeout, 0.80
	}
	if gap < d.cfg.NormalExitWindow {
		fraction := float64(gap) / float64(d.cfg.NormalExitWindow)
		confidence := 0.95 - 0.10*fraction
		if confidence < 0.85 {
			confidence = 0.85
		}
		return checkpoint.ReasonCrash, confidence
	}
	return checkpoint.ReasonUnknown, 0.5
}
