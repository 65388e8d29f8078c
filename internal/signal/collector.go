// internal/signal/collector.go
package signal

import (
	"time"

	"lifeline/internal/config"
)

// RiskLevel is the discrete crash-likelihood classification of a session
type RiskLevel string

const (
	RiskSafe    RiskLevel = "safe"
	RiskWarning RiskLevel = "warning"
	RiskDanger  RiskLevel = "danger"
)

// severity orders risk levels for monotonic escalation
func severity(level RiskLevel) int {
	switch level {
	case RiskDanger:
		return 2
	case RiskWarning:
		return 1
	default:
		return 0
	}
}

// Max returns the more severe of two risk levels
func Max(a, b RiskLevel) RiskLevel {
	if severity(b) > severity(a) {
		return b
	}
	return a
}

// Activity holds the raw rolling-window counters supplied by the host
// runtime on each sampling tick
type Activity struct {
	SessionID    string
	ToolCalls    int
	ToolErrors   int
	Duration     time.Duration
	MessageCount int
	AvgLatency   time.Duration
}

// ErrorRate returns the fraction of tool calls that failed
func (a Activity) ErrorRate() float64 {
	if a.ToolCalls == 0 {
		return 0
	}
	return float64(a.ToolErrors) / float64(a.ToolCalls)
}

// Snapshot is an immutable point-in-time risk snapshot
type Snapshot struct {
	SessionID     string
	Seq           int64 // assigned on persist, zero until saved
	Timestamp     time.Time
	ToolCallCount int
	ErrorRate     float64
	Duration      time.Duration
	MessageCount  int
	AvgLatency    time.Duration
	RiskLevel     RiskLevel
}

// Collector classifies raw activity into risk snapshots. Pure, no I/O;
// the caller decides whether to persist or act on the result.
type Collector struct {
	thresholds config.Thresholds
}

// NewCollector creates a collector with the given classification thresholds
func NewCollector(thresholds config.Thresholds) *Collector {
	return &Collector{thresholds: thresholds}
}

// Collect builds a snapshot from the current activity counters
func (c *Collector) Collect(activity Activity) Snapshot {
	return Snapshot{
		SessionID:     activity.SessionID,
		Timestamp:     time.Now(),
		ToolCallCount: activity.ToolCalls,
		ErrorRate:     activity.ErrorRate(),
		Duration:      activity.Duration,
		MessageCount:  activity.MessageCount,
		AvgLatency:    activity.AvgLatency,
		RiskLevel:     c.classify(activity),
	}
}

// classify escalates to the maximum severity any single metric triggers.
// A single metric past its danger threshold is danger regardless of the
// others; no averaging across metrics.
func (c *Collector) classify(activity Activity) RiskLevel {
	t := c.thresholds
	level := RiskSafe

	if activity.ErrorRate() > t.DangerErrorRate ||
		activity.Duration > t.DangerDuration ||
		activity.AvgLatency > t.DangerLatency {
		return RiskDanger
	}

	if activity.ErrorRate() > t.WarningErrorRate {
		level = Max(level, RiskWarning)
	}
	if activity.Duration > t.WarningDuration {
		level = Max(level, RiskWarning)
	}
	if activity.AvgLatency > t.WarningLatency {
		level = Max(level, RiskWarning)
	}
	if t.WarningToolCalls > 0 && activity.ToolCalls > t.WarningToolCalls {
		level = Max(level, RiskWarning)
	}
	if t.WarningMessages > 0 && activity.MessageCount > t.WarningMessages {
		level = Max(level, RiskWarning)
	}

	return level
}
