// internal/state/state.go
package state

import "time"

// Category identifies one of the six session state categories
type Category string

const (
	CategoryConversation Category = "conversation"
	CategoryTask         Category = "task"
	CategoryFile         Category = "file"
	CategoryTool         Category = "tool"
	CategorySignals      Category = "signals"
	CategoryPreferences  Category = "preferences"
)

// Categories returns the closed category set in canonical order
func Categories() [6]Category {
	return [6]Category{
		CategoryConversation,
		CategoryTask,
		CategoryFile,
		CategoryTool,
		CategorySignals,
		CategoryPreferences,
	}
}

// ConversationState captures the conversational context of a session
type ConversationState struct {
	Summary        string    `json:"summary,omitempty"`
	MessageCount   int       `json:"message_count"`
	LastUserInput  string    `json:"last_user_input,omitempty"`
	LastAssistant  string    `json:"last_assistant,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// TaskState captures what the session was working on
type TaskState struct {
	Current     string   `json:"current,omitempty"`
	Completed   []string `json:"completed,omitempty"`
	NextSteps   []string `json:"next_steps,omitempty"`
	Blockers    []string `json:"blockers,omitempty"`
	ProgressPct int      `json:"progress_pct"`
	Notes       string   `json:"notes,omitempty"`
}

// FileState captures the workspace files touched during the session
type FileState struct {
	Touched    []string `json:"touched,omitempty"`
	Branch     string   `json:"branch,omitempty"`
	Head       string   `json:"head,omitempty"`
	DirtyCount int      `json:"dirty_count"`
}

// ToolUse records one tool invocation
type ToolUse struct {
	Name   string    `json:"name"`
	At     time.Time `json:"at"`
	Failed bool      `json:"failed,omitempty"`
}

// ToolState captures recent tool activity
type ToolState struct {
	Recent     []ToolUse      `json:"recent,omitempty"`
	CallCounts map[string]int `json:"call_counts,omitempty"`
	LastTool   string         `json:"last_tool,omitempty"`
}

// SignalPoint is one risk snapshot embedded in checkpoint state
type SignalPoint struct {
	At        time.Time `json:"at"`
	RiskLevel string    `json:"risk_level"`
	ErrorRate float64   `json:"error_rate"`
}

// SignalState captures the recent risk trajectory leading to the checkpoint
type SignalState struct {
	Recent      []SignalPoint `json:"recent,omitempty"`
	LevelAtSave string        `json:"level_at_save"`
}

// PreferenceState captures host-supplied user preferences
type PreferenceState struct {
	Values map[string]string `json:"values,omitempty"`
}

// SessionState is a consistent point-in-time view of all six categories.
// Fixed struct rather than a map: the category set is closed.
type SessionState struct {
	Conversation ConversationState `json:"conversation"`
	Task         TaskState         `json:"task"`
	File         FileState         `json:"file"`
	Tool         ToolState         `json:"tool"`
	Signals      SignalState       `json:"signals"`
	Preferences  PreferenceState   `json:"preferences"`
}
