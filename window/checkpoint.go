package window

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint records only the last completed window's label and the entry
// timestamp immediately after it — enough for the pipeline runner to
// resume without re-deriving window boundaries.
type Checkpoint struct {
	Label           string    `json:"label"`
	NextEntryAfter  time.Time `json:"next_entry_after"`
}

// SaveCheckpoint writes cp to path via the standard atomic-file-write
// idiom: write to a temp file in the same directory, then rename. Rename
// within a directory is atomic on every platform Go supports, so a reader
// never observes a partially written checkpoint.
func SaveCheckpoint(path string, cp Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// LoadCheckpoint reads a checkpoint previously written by SaveCheckpoint.
// A missing file is reported via os.IsNotExist on the returned error; it is
// not itself a sentinel, since callers already need to special-case "no
// prior run" distinctly from other I/O failures.
func LoadCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}
