package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivergate/chronicle/entry"
)

func entries(n int, step time.Duration) []*entry.Entry {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*entry.Entry, n)
	for i := 0; i < n; i++ {
		e, err := entry.New("e"+string(rune('a'+i%26)), "src", base.Add(time.Duration(i)*step), "author", "hello")
		if err != nil {
			panic(err)
		}
		out[i] = e
	}
	return out
}

func collect(seq func(func(*Window) bool)) []*Window {
	var out []*Window
	seq(func(w *Window) bool {
		out = append(out, w)
		return true
	})
	return out
}

func TestCreate_EmptyStream(t *testing.T) {
	seq, err := Create(nil, 10, UnitMessages, 0)
	require.NoError(t, err)
	assert.Empty(t, collect(seq))
}

func TestCreate_InvalidSpec(t *testing.T) {
	t.Run("non-positive size", func(t *testing.T) {
		_, err := Create(entries(1, time.Minute), 0, UnitMessages, 0)
		assert.ErrorIs(t, err, ErrInvalidWindowSpec)
	})
	t.Run("unknown unit", func(t *testing.T) {
		_, err := Create(entries(1, time.Minute), 10, Unit("weeks"), 0)
		assert.ErrorIs(t, err, ErrInvalidWindowSpec)
	})
	t.Run("overlap out of bounds", func(t *testing.T) {
		_, err := Create(entries(1, time.Minute), 10, UnitMessages, 0.9)
		assert.ErrorIs(t, err, ErrInvalidWindowSpec)
	})
}

func TestCreate_ByMessages_NoOverlap(t *testing.T) {
	seq, err := Create(entries(10, time.Minute), 4, UnitMessages, 0)
	require.NoError(t, err)
	windows := collect(seq)
	require.Len(t, windows, 3)
	assert.Equal(t, 4, windows[0].Size)
	assert.Equal(t, 4, windows[1].Size)
	assert.Equal(t, 2, windows[2].Size)
}

func TestCreate_ByMessages_HalfOverlap(t *testing.T) {
	seq, err := Create(entries(10, time.Minute), 4, UnitMessages, 0.5)
	require.NoError(t, err)
	windows := collect(seq)
	require.GreaterOrEqual(t, len(windows), 2)
	// window n+1 starts at window n's midpoint: step = size - size*0.5 = 2.
	assert.Equal(t, windows[0].Entries[2].ID, windows[1].Entries[0].ID)
}

func TestCreate_ByDays(t *testing.T) {
	seq, err := Create(entries(5, 24*time.Hour), 1, UnitDays, 0)
	require.NoError(t, err)
	windows := collect(seq)
	assert.Len(t, windows, 5)
}

func TestSplitN(t *testing.T) {
	w := makeWindow(0, entries(10, time.Minute))

	t.Run("even split", func(t *testing.T) {
		parts, err := SplitN(w, 2)
		require.NoError(t, err)
		require.Len(t, parts, 2)
		assert.Equal(t, 5, parts[0].Size)
		assert.Equal(t, 5, parts[1].Size)
		assert.Equal(t, "window-0000-part-1-of-2", parts[0].Label)
		assert.Equal(t, "window-0000-part-2-of-2", parts[1].Label)
		assert.Equal(t, 1, parts[0].Depth)
	})

	t.Run("remainder goes to last part", func(t *testing.T) {
		w2 := makeWindow(0, entries(7, time.Minute))
		parts, err := SplitN(w2, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, parts[0].Size)
		assert.Equal(t, 4, parts[1].Size)
	})

	t.Run("rejects n < 2", func(t *testing.T) {
		_, err := SplitN(w, 1)
		assert.ErrorIs(t, err, ErrInvalidWindowSpec)
	})

	t.Run("rejects split below window size", func(t *testing.T) {
		tiny := makeWindow(0, entries(1, time.Minute))
		_, err := SplitN(tiny, 2)
		assert.ErrorIs(t, err, ErrInvalidWindowSpec)
	})
}

func TestCheckpointRoundTrip(t *testing.T) {
	path := t.TempDir() + "/checkpoint.json"
	cp := Checkpoint{Label: "window-0003", NextEntryAfter: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, SaveCheckpoint(path, cp))
	got, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, cp.Label, got.Label)
	assert.True(t, cp.NextEntryAfter.Equal(got.NextEntryAfter))
}
