// internal/workspace/tracker.go
package workspace

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5"

	"lifeline/internal/state"
)

// Tracker accumulates the set of workspace files touched during the
// session and snapshots repository context into the file state category.
// Tracking failures degrade to an empty file state; they never block
// checkpointing.
type Tracker struct {
	root    string
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu      sync.Mutex
	touched map[string]struct{}
	started bool
	closed  bool
}

// NewTracker creates a tracker rooted at the given workspace directory
func NewTracker(root string) (*Tracker, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create workspace watcher: %w", err)
	}

	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch workspace %s: %w", root, err)
	}

	return &Tracker{
		root:    root,
		watcher: watcher,
		done:    make(chan struct{}),
		touched: make(map[string]struct{}),
	}, nil
}

// AddPath adds an additional directory to watch
func (t *Tracker) AddPath(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("tracker is closed")
	}
	return t.watcher.Add(path)
}

// Start begins accumulating file events
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("tracker is closed")
	}
	if t.started {
		return fmt.Errorf("tracker already started")
	}
	t.started = true

	go t.watch()
	return nil
}

// Close stops tracking and releases the watcher
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.started {
		close(t.done)
	}
	return t.watcher.Close()
}

func (t *Tracker) watch() {
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.record(event)

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[workspace] watcher error: %v", err)

		case <-t.done:
			return
		}
	}
}

func (t *Tracker) record(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	rel, err := filepath.Rel(t.root, event.Name)
	if err != nil {
		rel = event.Name
	}
	if strings.HasPrefix(rel, ".git") {
		return
	}

	t.mu.Lock()
	t.touched[rel] = struct{}{}
	t.mu.Unlock()
}

// Touched returns the sorted set of files modified since tracking began
func (t *Tracker) Touched() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	paths := make([]string, 0, len(t.touched))
	for path := range t.touched {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// MarkTouched records a file path directly, for hosts that report tool
// writes themselves instead of relying on the filesystem watcher
func (t *Tracker) MarkTouched(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touched[path] = struct{}{}
}

// Snapshot builds the file state category: touched files plus repository
// context when the workspace is a git repo
func (t *Tracker) Snapshot() state.FileState {
	fs := state.FileState{Touched: t.Touched()}

	repo, err := git.PlainOpen(t.root)
	if err != nil {
		// Not a repository; touched files alone are still useful
		return fs
	}

	if head, err := repo.Head(); err == nil {
		fs.Head = head.Hash().String()
		if head.Name().IsBranch() {
			fs.Branch = head.Name().Short()
		}
	}

	if worktree, err := repo.Worktree(); err == nil {
		if status, err := worktree.Status(); err == nil {
			for _, fileStatus := range status {
				if fileStatus.Worktree != git.Unmodified || fileStatus.Staging != git.Unmodified {
					fs.DirtyCount++
				}
			}
		}
	}

	return fs
}
