// app.go
package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"lifeline/internal/checkpoint"
	"lifeline/internal/config"
	"lifeline/internal/database"
	"lifeline/internal/resume"
	"lifeline/internal/signal"
	"lifeline/internal/state"
	"lifeline/internal/workspace"
)

// recentSignalWindow bounds the risk trajectory embedded in each
// checkpoint's signals category
const recentSignalWindow = 20

// HostState supplies the host runtime's view of the categories Lifeline
// cannot observe itself. A nil host yields empty categories.
type HostState interface {
	Conversation() state.ConversationState
	Task() state.TaskState
	Tool() state.ToolState
	Preferences() state.PreferenceState
}

// App wires the checkpoint/recovery core together for a single session
type App struct {
	config *config.Config
	db     *database.Database

	collector *signal.Collector
	history   *signal.History
	store     *checkpoint.Store
	codec     *checkpoint.Codec
	manager   *checkpoint.Manager
	starter   *resume.Starter
	tracker   *workspace.Tracker

	sessionID string
	host      HostState

	mu     sync.Mutex
	recent []state.SignalPoint
}

// NewApp creates an App for one session. The host may be nil, in which
// case only the categories Lifeline observes itself are captured.
func NewApp(cfg *config.Config, sessionID string, host HostState) *App {
	return &App{
		config:    cfg,
		sessionID: sessionID,
		host:      host,
	}
}

// Startup opens the store, wires the components and runs resume
// detection. It returns promptly with an empty result when nothing
// needs resuming.
func (a *App) Startup(ctx context.Context, workspaceRoot string) (*resume.StartResult, error) {
	db, err := database.Open(a.config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db

	settings := a.config.Settings
	a.collector = signal.NewCollector(settings.Thresholds)
	a.history = signal.NewHistory(db)
	a.store = checkpoint.NewStore(db)
	a.codec = checkpoint.NewCodec(settings.CompressionLevel)
	a.manager = checkpoint.NewManager(a.store, a.codec, settings.Triggers, a)

	detector := resume.NewDetector(a.store, settings.Resume)
	restorer := resume.NewRestorer(a.store, a.codec)
	a.starter = resume.NewStarter(detector, restorer, a.store)

	if workspaceRoot != "" {
		tracker, err := workspace.NewTracker(workspaceRoot)
		if err != nil {
			log.Printf("[app] workspace tracking unavailable: %v", err)
		} else if err := tracker.Start(); err != nil {
			log.Printf("[app] workspace tracking unavailable: %v", err)
			tracker.Close()
		} else {
			a.tracker = tracker
		}
	}

	result, err := a.starter.Start(ctx, a.sessionID)
	if err != nil {
		if a.tracker != nil {
			a.tracker.Close()
		}
		db.Close()
		return nil, err
	}
	return result, nil
}

// Tick is the host-facing sampling entry point, called on a periodic
// schedule with current rolling-window counters. A failed sample is
// skipped, and checkpoint failures are retried on the next trigger;
// neither ever propagates into the host loop.
func (a *App) Tick(ctx context.Context, activity signal.Activity) {
	activity.SessionID = a.sessionID
	snapshot := a.collector.Collect(activity)

	if err := a.history.Save(ctx, &snapshot); err != nil {
		log.Printf("[app] snapshot skipped: %v", err)
	}

	a.mu.Lock()
	a.recent = append(a.recent, state.SignalPoint{
		At:        snapshot.Timestamp,
		RiskLevel: string(snapshot.RiskLevel),
		ErrorRate: snapshot.ErrorRate,
	})
	if len(a.recent) > recentSignalWindow {
		a.recent = a.recent[len(a.recent)-recentSignalWindow:]
	}
	a.mu.Unlock()

	if _, err := a.manager.AutoCheckpoint(ctx, a.sessionID, snapshot); err != nil {
		log.Printf("[app] auto checkpoint deferred: %v", err)
	}
}

// NoteToolCall feeds the tool-call trigger counter
func (a *App) NoteToolCall() {
	a.manager.NoteToolCall()
}

// CheckpointNow forces a checkpoint outside the trigger policy
func (a *App) CheckpointNow(ctx context.Context) (checkpoint.Result, error) {
	return a.manager.CheckpointNow(ctx, a.sessionID, signal.RiskSafe)
}

// CaptureState assembles a consistent view of all six categories:
// host-supplied conversation/task/tool/preferences plus Lifeline's own
// file and signal observations
func (a *App) CaptureState() (*state.SessionState, error) {
	captured := &state.SessionState{}

	if a.host != nil {
		captured.Conversation = a.host.Conversation()
		captured.Task = a.host.Task()
		captured.Tool = a.host.Tool()
		captured.Preferences = a.host.Preferences()
	}

	if a.tracker != nil {
		captured.File = a.tracker.Snapshot()
	}

	a.mu.Lock()
	captured.Signals.Recent = append([]state.SignalPoint(nil), a.recent...)
	a.mu.Unlock()

	return captured, nil
}

// Cleanup applies the retention policy to signal history and checkpoints
func (a *App) Cleanup(ctx context.Context) error {
	retention := a.config.Settings.Retention

	removed, err := a.history.Cleanup(ctx, retention.SignalDays)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("[app] pruned %d signal snapshots", removed)
	}

	removed, err = a.store.Cleanup(ctx, retention.CheckpointDays)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("[app] pruned %d checkpoints", removed)
	}
	return nil
}

// Shutdown records a graceful-shutdown marker and releases resources.
// The marker is what lets the next start rule out a crash.
func (a *App) Shutdown(reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.store.RecordGracefulShutdown(ctx, a.sessionID, reason); err != nil {
		log.Printf("[app] shutdown marker failed: %v", err)
	}

	if a.tracker != nil {
		a.tracker.Close()
	}
	return a.db.Close()
}
