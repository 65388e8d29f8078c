// internal/resume/prompt.go
package resume

import (
	"fmt"
	"strings"
	"time"
)

// GeneratePrompt renders a structured resume summary purely from
// checkpoint data. Sections are fixed; a category that failed to restore
// renders as unavailable rather than being silently omitted.
func GeneratePrompt(detection *Detection, restored *Restored) string {
	cp := detection.LastCheckpoint
	var b strings.Builder

	b.WriteString("## Session Resume\n\n")

	// Situation
	b.WriteString("### Situation\n")
	fmt.Fprintf(&b, "The previous session was interrupted (%s, confidence %.0f%%). ", detection.Reason, detection.Confidence*100)
	fmt.Fprintf(&b, "Checkpoint #%d was saved %s ago (trigger: %s, risk level: %s). ",
		cp.Number, formatGap(detection.TimeSinceCheckpoint), cp.Trigger, cp.RiskLevel)
	fmt.Fprintf(&b, "State restored at %.0f%% fidelity.\n\n", restored.Fidelity*100)

	// Progress
	b.WriteString("### Progress\n")
	if restored.Task != nil {
		if restored.Task.Current != "" {
			fmt.Fprintf(&b, "Working on: %s (%d%% complete)\n", restored.Task.Current, restored.Task.ProgressPct)
		}
		for _, done := range restored.Task.Completed {
			fmt.Fprintf(&b, "- [x] %s\n", done)
		}
	} else {
		b.WriteString("Task state unavailable.\n")
	}
	b.WriteString("\n")

	// Context
	b.WriteString("### Context\n")
	if restored.Conversation != nil {
		if restored.Conversation.Summary != "" {
			b.WriteString(restored.Conversation.Summary + "\n")
		}
		fmt.Fprintf(&b, "%d messages exchanged.\n", restored.Conversation.MessageCount)
	} else {
		b.WriteString("Conversation state unavailable.\n")
	}
	b.WriteString("\n")

	// Next steps
	b.WriteString("### Next Steps\n")
	if restored.Task != nil && len(restored.Task.NextSteps) > 0 {
		for _, step := range restored.Task.NextSteps {
			fmt.Fprintf(&b, "- [ ] %s\n", step)
		}
	} else {
		b.WriteString("No recorded next steps.\n")
	}
	b.WriteString("\n")

	// Files touched
	b.WriteString("### Files Touched\n")
	if restored.File != nil {
		if restored.File.Branch != "" {
			fmt.Fprintf(&b, "Branch: %s", restored.File.Branch)
			if restored.File.Head != "" {
				fmt.Fprintf(&b, " @ %s", shortHash(restored.File.Head))
			}
			b.WriteString("\n")
		}
		for _, path := range restored.File.Touched {
			fmt.Fprintf(&b, "- %s\n", path)
		}
		if len(restored.File.Touched) == 0 {
			b.WriteString("No files recorded.\n")
		}
	} else {
		b.WriteString("File state unavailable.\n")
	}
	b.WriteString("\n")

	// Tools used
	b.WriteString("### Tools Used\n")
	if restored.Tool != nil && len(restored.Tool.CallCounts) > 0 {
		for name, count := range restored.Tool.CallCounts {
			fmt.Fprintf(&b, "- %s: %d calls\n", name, count)
		}
		if restored.Tool.LastTool != "" {
			fmt.Fprintf(&b, "Last tool before interruption: %s\n", restored.Tool.LastTool)
		}
	} else {
		b.WriteString("No tool activity recorded.\n")
	}
	b.WriteString("\n")

	// Blockers
	b.WriteString("### Blockers\n")
	if restored.Task != nil && len(restored.Task.Blockers) > 0 {
		for _, blocker := range restored.Task.Blockers {
			fmt.Fprintf(&b, "- %s\n", blocker)
		}
	} else {
		b.WriteString("None recorded.\n")
	}

	return b.String()
}

func formatGap(gap time.Duration) string {
	return gap.Round(time.Second).String()
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
