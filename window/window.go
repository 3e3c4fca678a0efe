// Package window implements the pure transformation that groups an ordered
// entry stream into bounded work units: time/count/byte-sized windows with
// optional overlap, and deterministic recursive splitting when a window
// overflows downstream context limits.
package window

import (
	"errors"
	"fmt"
	"iter"
	"time"
	"unicode/utf8"

	"github.com/rivergate/chronicle/entry"
)

// Unit names the dimension a window is sized along.
type Unit string

const (
	UnitMessages Unit = "messages"
	UnitDays     Unit = "days"
	UnitHours    Unit = "hours"
	UnitBytes    Unit = "bytes"
)

// ErrInvalidWindowSpec is returned by Create for a non-positive size, an
// unknown unit, or an overlap ratio outside [0, 0.5].
var ErrInvalidWindowSpec = errors.New("window: invalid window spec")

// Window is an ephemeral work unit over a contiguous run of entries. Windows
// are owned by the pipeline runner for their lifetime and discarded once
// committed; nothing persists a Window itself.
type Window struct {
	Label     string
	StartTime time.Time
	EndTime   time.Time
	Size      int
	ByteSize  int
	Entries   []*entry.Entry

	// Depth is the recursive-split depth of this window: 0 for a
	// top-level window produced by Create, N for a window produced by N
	// nested calls to SplitN.
	Depth int
}

func validUnit(u Unit) bool {
	switch u {
	case UnitMessages, UnitDays, UnitHours, UnitBytes:
		return true
	default:
		return false
	}
}

// byteSize is character count, per the resolved Open Question in
// SPEC_FULL.md §3 (C6): a token-aware variant is left as future work and
// deliberately not wired in here.
func byteSize(entries []*entry.Entry) int {
	n := 0
	for _, e := range entries {
		n += utf8.RuneCountInString(e.Content)
	}
	return n
}

// Create groups entries (already ordered by timestamp) into windows sized
// per size/unit, re-including the trailing overlapRatio fraction of each
// window at the start of the next. It is a lazy Go 1.23 iterator: no window
// is materialized until the consumer asks for it.
func Create(entries []*entry.Entry, size int, unit Unit, overlapRatio float64) (iter.Seq[*Window], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidWindowSpec, size)
	}
	if !validUnit(unit) {
		return nil, fmt.Errorf("%w: unknown unit %q", ErrInvalidWindowSpec, unit)
	}
	if overlapRatio < 0 || overlapRatio > 0.5 {
		return nil, fmt.Errorf("%w: overlap_ratio must be in [0, 0.5], got %v", ErrInvalidWindowSpec, overlapRatio)
	}

	return func(yield func(*Window) bool) {
		if len(entries) == 0 {
			return
		}
		switch unit {
		case UnitMessages:
			createByCount(entries, size, overlapRatio, yield)
		case UnitBytes:
			createByBytes(entries, size, overlapRatio, yield)
		case UnitDays:
			createByDuration(entries, time.Duration(size)*24*time.Hour, overlapRatio, yield)
		case UnitHours:
			createByDuration(entries, time.Duration(size)*time.Hour, overlapRatio, yield)
		}
	}, nil
}

func makeWindow(idx int, chunk []*entry.Entry) *Window {
	return &Window{
		Label:     fmt.Sprintf("window-%04d", idx),
		StartTime: chunk[0].Timestamp,
		EndTime:   chunk[len(chunk)-1].Timestamp,
		Size:      len(chunk),
		ByteSize:  byteSize(chunk),
		Entries:   append([]*entry.Entry(nil), chunk...),
	}
}

// createByCount advances by (size - overlapCount) entries per window, so
// window n+1 re-includes the trailing overlapRatio fraction of window n.
func createByCount(entries []*entry.Entry, size int, overlapRatio float64, yield func(*Window) bool) {
	overlapCount := int(float64(size) * overlapRatio)
	step := size - overlapCount
	if step <= 0 {
		step = 1
	}
	idx := 0
	for start := 0; start < len(entries); start += step {
		end := start + size
		if end > len(entries) {
			end = len(entries)
		}
		if !yield(makeWindow(idx, entries[start:end])) {
			return
		}
		idx++
		if end == len(entries) {
			return
		}
	}
}

// createByBytes greedily accumulates entries until adding the next one
// would exceed size (counted in characters, as byteSize counts), then
// starts a new window re-including the
// trailing overlapRatio fraction of the prior window's entries.
func createByBytes(entries []*entry.Entry, size int, overlapRatio float64, yield func(*Window) bool) {
	idx := 0
	i := 0
	for i < len(entries) {
		var chunk []*entry.Entry
		total := 0
		j := i
		for j < len(entries) {
			n := utf8.RuneCountInString(entries[j].Content)
			if total > 0 && total+n > size {
				break
			}
			chunk = append(chunk, entries[j])
			total += n
			j++
		}
		if len(chunk) == 0 {
			// a single entry already exceeds size; emit it alone rather
			// than looping forever.
			chunk = append(chunk, entries[i])
			j = i + 1
		}
		if !yield(makeWindow(idx, chunk)) {
			return
		}
		idx++
		if j >= len(entries) {
			return
		}
		overlapCount := int(float64(len(chunk)) * overlapRatio)
		i = j - overlapCount
		if i <= j-len(chunk) {
			i = j
		}
	}
}

// createByDuration groups entries whose timestamp falls within
// [windowStart, windowStart+span), advancing windowStart by
// span*(1-overlapRatio) each iteration, re-including entries in the
// trailing overlap fraction of elapsed time.
func createByDuration(entries []*entry.Entry, span time.Duration, overlapRatio float64, yield func(*Window) bool) {
	if span <= 0 {
		return
	}
	step := time.Duration(float64(span) * (1 - overlapRatio))
	if step <= 0 {
		step = span
	}
	idx := 0
	windowStart := entries[0].Timestamp
	for {
		windowEnd := windowStart.Add(span)
		var chunk []*entry.Entry
		for _, e := range entries {
			if !e.Timestamp.Before(windowStart) && e.Timestamp.Before(windowEnd) {
				chunk = append(chunk, e)
			}
		}
		if len(chunk) > 0 {
			if !yield(makeWindow(idx, chunk)) {
				return
			}
			idx++
		}
		windowStart = windowStart.Add(step)
		if windowStart.After(entries[len(entries)-1].Timestamp) {
			return
		}
	}
}

// SplitN deterministically splits w into n equal-count parts (the last part
// absorbs any remainder), labeling each "<label>-part-<k>-of-<n>" and
// incrementing Depth.
func SplitN(w *Window, n int) ([]*Window, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: split count must be >= 2, got %d", ErrInvalidWindowSpec, n)
	}
	if len(w.Entries) < n {
		return nil, fmt.Errorf("%w: window of size %d cannot split into %d parts", ErrInvalidWindowSpec, len(w.Entries), n)
	}

	base := len(w.Entries) / n
	rem := len(w.Entries) % n
	parts := make([]*Window, 0, n)
	start := 0
	for k := 1; k <= n; k++ {
		count := base
		if k == n {
			count += rem
		}
		chunk := w.Entries[start : start+count]
		parts = append(parts, &Window{
			Label:     fmt.Sprintf("%s-part-%d-of-%d", w.Label, k, n),
			StartTime: chunk[0].Timestamp,
			EndTime:   chunk[len(chunk)-1].Timestamp,
			Size:      len(chunk),
			ByteSize:  byteSize(chunk),
			Entries:   chunk,
			Depth:     w.Depth + 1,
		})
		start += count
	}
	return parts, nil
}
