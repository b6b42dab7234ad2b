// Package conflict watches active milestone worktrees for overlapping file
// modifications. Two milestones touching the same relative path usually
// means their branches will collide at merge time, so the detector surfaces
// that early. It is purely advisory and never gates progress.
package conflict

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/maestro/internal/logging"
)

// debounceWindow batches rapid-fire events; editors and agents emit several
// writes for one logical save.
const debounceWindow = 50 * time.Millisecond

// FileConflict is one relative path modified by more than one milestone.
type FileConflict struct {
	// RelativePath is the path relative to each worktree root, which makes
	// it comparable across worktrees.
	RelativePath string

	// Milestones lists the milestone IDs that touched the path, sorted.
	Milestones []string

	// LastModified is the most recent modification among them.
	LastModified time.Time
}

// Detector watches milestone worktrees via fsnotify and tracks which
// milestone modified which relative path.
type Detector struct {
	watcher *fsnotify.Watcher
	logger  *logging.Logger

	mu sync.RWMutex
	// milestone ID -> worktree path
	milestones map[string]string
	// relative path -> milestone ID -> last modification time
	modifications map[string]map[string]time.Time
	conflicts     []FileConflict
	conflicted    map[string]struct{}
	onConflict    func([]FileConflict)

	ignoreNames []string
	stopOnce    sync.Once
	stopCh      chan struct{}
}

// New creates a Detector. Call Start to begin processing events.
func New(logger *logging.Logger) (*Detector, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Detector{
		watcher:       watcher,
		logger:        logger,
		milestones:    make(map[string]string),
		modifications: make(map[string]map[string]time.Time),
		conflicted:    make(map[string]struct{}),
		ignoreNames:   []string{".git", ".maestro", "node_modules", ".DS_Store"},
		stopCh:        make(chan struct{}),
	}, nil
}

// SetConflictCallback registers cb, invoked from the watch goroutine
// whenever a path becomes contested that was not before.
func (d *Detector) SetConflictCallback(cb func([]FileConflict)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onConflict = cb
}

// AddMilestone starts watching a milestone's worktree, including its
// current subdirectories.
func (d *Detector) AddMilestone(milestoneID, worktreePath string) error {
	info, err := os.Stat(worktreePath)
	if err != nil {
		return fmt.Errorf("worktree path does not exist: %s", worktreePath)
	}
	if !info.IsDir() {
		return fmt.Errorf("worktree path is not a directory: %s", worktreePath)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.milestones[milestoneID] = worktreePath
	return d.watchTreeLocked(worktreePath)
}

// watchTreeLocked registers root and every non-ignored subdirectory.
// fsnotify only reports events for directories it watches directly.
func (d *Detector) watchTreeLocked(root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && d.ignoredName(entry.Name()) {
			return filepath.SkipDir
		}
		if addErr := d.watcher.Add(path); addErr != nil {
			d.logger.Debug("cannot watch directory", "path", path, "error", addErr)
		}
		return nil
	})
}

// RemoveMilestone stops watching a milestone's worktree and forgets its
// modifications. Conflicts involving only this milestone dissolve.
func (d *Detector) RemoveMilestone(milestoneID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	worktreePath, ok := d.milestones[milestoneID]
	if !ok {
		return
	}

	_ = d.watcher.Remove(worktreePath)
	delete(d.milestones, milestoneID)

	for relPath, byMilestone := range d.modifications {
		delete(byMilestone, milestoneID)
		if len(byMilestone) == 0 {
			delete(d.modifications, relPath)
		}
	}
	d.recalculateLocked()
}

// Start begins processing filesystem events.
func (d *Detector) Start() {
	go d.watchLoop()
}

// Stop shuts the detector down. Safe to call more than once.
func (d *Detector) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		_ = d.watcher.Close()
	})
}

func (d *Detector) watchLoop() {
	debounce := time.NewTimer(0)
	<-debounce.C

	pending := make(map[string]fsnotify.Event)

	for {
		select {
		case <-d.stopCh:
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending[event.Name] = event
			debounce.Reset(debounceWindow)

		case <-debounce.C:
			for _, event := range pending {
				d.handleEvent(event)
			}
			pending = make(map[string]fsnotify.Event)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("file watcher error", "error", err)
		}
	}
}

// handleEvent attributes one debounced event to a milestone and rechecks
// for conflicts.
func (d *Detector) handleEvent(event fsnotify.Event) {
	path := event.Name
	if d.pathIgnored(path) {
		return
	}

	// Directories created after AddMilestone need their own watch.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			d.mu.Lock()
			_ = d.watchTreeLocked(path)
			d.mu.Unlock()
			return
		}
	}

	d.mu.Lock()

	var milestoneID, relPath string
	for id, worktreePath := range d.milestones {
		if strings.HasPrefix(path, worktreePath+string(filepath.Separator)) {
			milestoneID = id
			relPath, _ = filepath.Rel(worktreePath, path)
			break
		}
	}
	if milestoneID == "" {
		d.mu.Unlock()
		return
	}

	byMilestone := d.modifications[relPath]
	if byMilestone == nil {
		byMilestone = make(map[string]time.Time)
		d.modifications[relPath] = byMilestone
	}
	byMilestone[milestoneID] = time.Now()

	fresh, conflicts := d.recalculateLocked()
	cb := d.onConflict
	d.mu.Unlock()

	if fresh && cb != nil {
		cb(conflicts)
	}
}

// recalculateLocked rebuilds the conflict list and reports whether a path
// became contested that was not before. The caller must hold the mutex.
func (d *Detector) recalculateLocked() (bool, []FileConflict) {
	conflicts := make([]FileConflict, 0)
	conflicted := make(map[string]struct{})
	fresh := false

	for relPath, byMilestone := range d.modifications {
		if len(byMilestone) < 2 {
			continue
		}

		ids := make([]string, 0, len(byMilestone))
		var last time.Time
		for id, modTime := range byMilestone {
			ids = append(ids, id)
			if modTime.After(last) {
				last = modTime
			}
		}
		sort.Strings(ids)

		conflicts = append(conflicts, FileConflict{
			RelativePath: relPath,
			Milestones:   ids,
			LastModified: last,
		})
		conflicted[relPath] = struct{}{}
		if _, known := d.conflicted[relPath]; !known {
			fresh = true
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].RelativePath < conflicts[j].RelativePath
	})

	d.conflicts = conflicts
	d.conflicted = conflicted
	return fresh, append([]FileConflict(nil), conflicts...)
}

// Conflicts returns a copy of the current conflicts, sorted by path.
func (d *Detector) Conflicts() []FileConflict {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]FileConflict(nil), d.conflicts...)
}

// HasConflicts reports whether any path is currently contested.
func (d *Detector) HasConflicts() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conflicts) > 0
}

// FilesModifiedBy returns the relative paths a milestone touched, sorted.
func (d *Detector) FilesModifiedBy(milestoneID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var files []string
	for relPath, byMilestone := range d.modifications {
		if _, ok := byMilestone[milestoneID]; ok {
			files = append(files, relPath)
		}
	}
	sort.Strings(files)
	return files
}

func (d *Detector) ignoredName(name string) bool {
	for _, ignore := range d.ignoreNames {
		if name == ignore {
			return true
		}
	}
	return false
}

func (d *Detector) pathIgnored(path string) bool {
	sep := string(filepath.Separator)
	for _, ignore := range d.ignoreNames {
		if strings.Contains(path, sep+ignore+sep) ||
			strings.HasSuffix(path, sep+ignore) ||
			filepath.Base(path) == ignore {
			return true
		}
	}
	return false
}
