package runtracker

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileTracker implements Tracker as an in-place update over a single
// snapshot file at a fixed path, row-locked per run id — the
// implementation choice spec.md's §4.9 leaves open between insert-only
// audit rows and in-place update under a lock (see DESIGN.md). Every
// mutation rewrites the whole snapshot atomically via a temp file and
// os.Rename, the same idiom repository.FileStore's Compact and
// window.SaveCheckpoint use.
type FileTracker struct {
	path string

	mu   sync.RWMutex // guards runs
	runs map[string]*Run

	writeMu sync.Mutex // serializes snapshot writes

	rowLocksMu sync.Mutex
	rowLocks   map[string]*sync.Mutex
}

var _ Tracker = (*FileTracker)(nil)

// OpenFileTracker opens (creating if absent) the run-tracker snapshot at
// path and loads its current contents.
func OpenFileTracker(path string) (*FileTracker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("runtracker: open: %w", err)
	}

	t := &FileTracker{
		path:     path,
		runs:     make(map[string]*Run),
		rowLocks: make(map[string]*sync.Mutex),
	}

	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runtracker: open: %w", err)
	}
	defer f.Close()

	var snapshot map[string]*Run
	if err := gob.NewDecoder(f).Decode(&snapshot); err != nil && err != io.EOF {
		return nil, fmt.Errorf("runtracker: load: %w", err)
	}
	if snapshot != nil {
		t.runs = snapshot
	}
	return t, nil
}

func (t *FileTracker) rowLock(runID string) *sync.Mutex {
	t.rowLocksMu.Lock()
	defer t.rowLocksMu.Unlock()
	l, ok := t.rowLocks[runID]
	if !ok {
		l = &sync.Mutex{}
		t.rowLocks[runID] = l
	}
	return l
}

func (t *FileTracker) get(runID string) (*Run, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.runs[runID]
	return r, ok
}

func (t *FileTracker) CreateRun(ctx context.Context, configFingerprint string) (string, error) {
	runID := uuid.NewString()
	lock := t.rowLock(runID)
	lock.Lock()
	defer lock.Unlock()

	t.mu.Lock()
	t.runs[runID] = &Run{RunID: runID, ConfigFingerprint: configFingerprint, Status: StatusPending}
	t.mu.Unlock()

	if err := t.persist(); err != nil {
		return "", err
	}
	return runID, nil
}

func (t *FileTracker) Start(ctx context.Context, runID string) error {
	lock := t.rowLock(runID)
	lock.Lock()
	defer lock.Unlock()

	r, ok := t.get(runID)
	if !ok {
		return ErrNotFound
	}
	if isTerminal(r.Status) {
		return ErrTerminal
	}

	t.mu.Lock()
	r.Status = StatusRunning
	r.StartedAt = time.Now().UTC()
	t.mu.Unlock()
	return t.persist()
}

func (t *FileTracker) Advance(ctx context.Context, runID, windowLabel string, ordinal int) error {
	lock := t.rowLock(runID)
	lock.Lock()
	defer lock.Unlock()

	r, ok := t.get(runID)
	if !ok {
		return ErrNotFound
	}
	if isTerminal(r.Status) {
		return ErrTerminal
	}
	if r.Cursor != "" && ordinal <= r.CursorOrdinal {
		return fmt.Errorf("runtracker: cursor must advance: ordinal %d does not exceed current %d", ordinal, r.CursorOrdinal)
	}

	t.mu.Lock()
	r.Cursor = windowLabel
	r.CursorOrdinal = ordinal
	t.mu.Unlock()
	return t.persist()
}

func (t *FileTracker) Finish(ctx context.Context, runID string, status Status, errSummary string) error {
	if !isTerminal(status) {
		return fmt.Errorf("runtracker: finish requires a terminal status, got %q", status)
	}
	lock := t.rowLock(runID)
	lock.Lock()
	defer lock.Unlock()

	r, ok := t.get(runID)
	if !ok {
		return ErrNotFound
	}
	if isTerminal(r.Status) {
		return ErrTerminal
	}

	t.mu.Lock()
	r.Status = status
	r.ErrorSummary = errSummary
	r.FinishedAt = time.Now().UTC()
	t.mu.Unlock()
	return t.persist()
}

func (t *FileTracker) Latest(ctx context.Context, configFingerprint string) (*Run, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var latest *Run
	for _, r := range t.runs {
		if r.ConfigFingerprint != configFingerprint {
			continue
		}
		if latest == nil || r.StartedAt.After(latest.StartedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// persist atomically rewrites the whole snapshot file.
func (t *FileTracker) persist() error {
	t.mu.RLock()
	snapshot := make(map[string]*Run, len(t.runs))
	for k, v := range t.runs {
		cp := *v
		snapshot[k] = &cp
	}
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".runtracker-*")
	if err != nil {
		return fmt.Errorf("runtracker: persist: %w", err)
	}
	tmpPath := tmp.Name()

	if err := gob.NewEncoder(tmp).Encode(snapshot); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("runtracker: persist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("runtracker: persist: %w", err)
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("runtracker: persist: %w", err)
	}
	return nil
}
