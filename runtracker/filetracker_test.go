package runtracker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *FileTracker {
	t.Helper()
	tr, err := OpenFileTracker(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	return tr
}

func TestCreateRun_StartsPendingWithNullCursor(t *testing.T) {
	tr := newTestTracker(t)
	runID, err := tr.CreateRun(context.Background(), "fp-1")
	require.NoError(t, err)

	run, err := tr.Latest(context.Background(), "fp-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, runID, run.RunID)
	assert.Equal(t, StatusPending, run.Status)
	assert.Empty(t, run.Cursor)
}

func TestStart_TransitionsToRunning(t *testing.T) {
	tr := newTestTracker(t)
	runID, err := tr.CreateRun(context.Background(), "fp-1")
	require.NoError(t, err)

	require.NoError(t, tr.Start(context.Background(), runID))
	run, err := tr.Latest(context.Background(), "fp-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.False(t, run.StartedAt.IsZero())
}

func TestAdvance_EnforcesMonotonicCursor(t *testing.T) {
	tr := newTestTracker(t)
	runID, err := tr.CreateRun(context.Background(), "fp-1")
	require.NoError(t, err)
	require.NoError(t, tr.Start(context.Background(), runID))

	require.NoError(t, tr.Advance(context.Background(), runID, "window-1", 1))
	require.NoError(t, tr.Advance(context.Background(), runID, "window-2", 2))

	err = tr.Advance(context.Background(), runID, "window-1-replay", 2)
	assert.Error(t, err, "advancing to a non-increasing ordinal must be rejected")

	run, err := tr.Latest(context.Background(), "fp-1")
	require.NoError(t, err)
	assert.Equal(t, "window-2", run.Cursor, "rejected advance must not mutate the cursor")
}

func TestFinish_IsTerminalAndImmutable(t *testing.T) {
	tr := newTestTracker(t)
	runID, err := tr.CreateRun(context.Background(), "fp-1")
	require.NoError(t, err)
	require.NoError(t, tr.Start(context.Background(), runID))
	require.NoError(t, tr.Finish(context.Background(), runID, StatusSucceeded, ""))

	err = tr.Advance(context.Background(), runID, "window-3", 3)
	assert.ErrorIs(t, err, ErrTerminal)

	err = tr.Finish(context.Background(), runID, StatusFailed, "should not apply")
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestFinish_RejectsNonTerminalStatus(t *testing.T) {
	tr := newTestTracker(t)
	runID, err := tr.CreateRun(context.Background(), "fp-1")
	require.NoError(t, err)
	err = tr.Finish(context.Background(), runID, StatusRunning, "")
	assert.Error(t, err)
}

func TestLatest_PicksMostRecentlyStartedForFingerprint(t *testing.T) {
	tr := newTestTracker(t)
	first, err := tr.CreateRun(context.Background(), "fp-1")
	require.NoError(t, err)
	require.NoError(t, tr.Start(context.Background(), first))
	require.NoError(t, tr.Finish(context.Background(), first, StatusSucceeded, ""))

	second, err := tr.CreateRun(context.Background(), "fp-1")
	require.NoError(t, err)
	require.NoError(t, tr.Start(context.Background(), second))

	run, err := tr.Latest(context.Background(), "fp-1")
	require.NoError(t, err)
	assert.Equal(t, second, run.RunID)
}

func TestLatest_UnknownFingerprintReturnsNil(t *testing.T) {
	tr := newTestTracker(t)
	run, err := tr.Latest(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestPersistence_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")

	tr, err := OpenFileTracker(path)
	require.NoError(t, err)
	runID, err := tr.CreateRun(context.Background(), "fp-1")
	require.NoError(t, err)
	require.NoError(t, tr.Start(context.Background(), runID))
	require.NoError(t, tr.Advance(context.Background(), runID, "window-1", 1))

	reopened, err := OpenFileTracker(path)
	require.NoError(t, err)
	run, err := reopened.Latest(context.Background(), "fp-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "window-1", run.Cursor)
}
