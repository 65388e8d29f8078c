// internal/checkpoint/models.go
package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lifeline/internal/signal"
	"lifeline/internal/state"
)

// TriggerType identifies the condition that caused a checkpoint
type TriggerType string

const (
	TriggerDangerZone       TriggerType = "danger_zone"
	TriggerWarningZone      TriggerType = "warning_zone"
	TriggerToolCallInterval TriggerType = "tool_call_interval"
	TriggerTimeInterval     TriggerType = "time_interval"
	TriggerManual           TriggerType = "manual"
)

// InterruptionReason classifies how a prior session ended
type InterruptionReason string

const (
	ReasonCrash      InterruptionReason = "crash"
	ReasonTimeout    InterruptionReason = "timeout"
	ReasonManualExit InterruptionReason = "manual_exit"
	ReasonUnknown    InterruptionReason = "unknown"
)

// ErrNotFound is returned when a requested checkpoint does not exist
var ErrNotFound = errors.New("checkpoint not found")

// ErrDuplicateNumber is returned when an explicitly supplied checkpoint
// number collides with an existing one for the session
var ErrDuplicateNumber = errors.New("duplicate checkpoint number")

// CompressionError reports which state category failed to serialize or
// compress. Any single category failure aborts the whole checkpoint.
type CompressionError struct {
	Category state.Category
	Err      error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("compress %s state: %v", e.Category, e.Err)
}

func (e *CompressionError) Unwrap() error {
	return e.Err
}

// CompressedState holds the six independently compressed category blobs.
// Categories are compressed separately so restore can decompress one
// without touching the others.
type CompressedState struct {
	Conversation []byte
	Task         []byte
	File         []byte
	Tool         []byte
	Signals      []byte
	Preferences  []byte
}

// Blob returns the compressed bytes for one category
func (c *CompressedState) Blob(category state.Category) []byte {
	switch category {
	case state.CategoryConversation:
		return c.Conversation
	case state.CategoryTask:
		return c.Task
	case state.CategoryFile:
		return c.File
	case state.CategoryTool:
		return c.Tool
	case state.CategorySignals:
		return c.Signals
	case state.CategoryPreferences:
		return c.Preferences
	}
	return nil
}

// Checkpoint is a persisted, compressed snapshot of all session state
// categories at one point in time
type Checkpoint struct {
	ID         string
	SessionID  string
	Number     int64
	CreatedAt  time.Time
	Trigger    TriggerType
	RiskLevel  signal.RiskLevel
	State      CompressedState
	Restored   bool
	RestoredAt *time.Time
}

// Input describes a checkpoint to be created. Number zero means
// "assign the next per-session number".
type Input struct {
	SessionID string
	Number    int64
	Trigger   TriggerType
	RiskLevel signal.RiskLevel
	State     *CompressedState
}

// ResumeEvent records a detected abnormal-termination recovery attempt
type ResumeEvent struct {
	ID           string
	CheckpointID string
	DetectedAt   time.Time
	Reason       InterruptionReason
	Confidence   float64
	Fidelity     float64
}

// GenerateID generates a new checkpoint or resume-event ID
func GenerateID() string {
	return uuid.New().String()
}
