package runtracker

import "context"

// Tracker is the run-tracking contract: every transition must be atomic
// and crash-safe, so a resumed process can trust the last-read Cursor.
type Tracker interface {
	// CreateRun inserts a new Run in StatusPending with a null cursor and
	// returns its generated run id.
	CreateRun(ctx context.Context, configFingerprint string) (string, error)
	// Start transitions a pending run, or a running run being resumed, to
	// running; a run in a terminal status is rejected with ErrTerminal.
	Start(ctx context.Context, runID string) error
	// Advance atomically writes a new cursor. ordinal is the window's
	// position in the run's window sequence; Advance rejects any ordinal
	// that does not strictly increase past the run's current
	// CursorOrdinal, enforcing monotonicity.
	Advance(ctx context.Context, runID, windowLabel string, ordinal int) error
	// Finish transitions a run to a terminal status, recording errSummary
	// when status is not StatusSucceeded.
	Finish(ctx context.Context, runID string, status Status, errSummary string) error
	// Latest returns the most recently started run for configFingerprint,
	// or nil if none exists, for resumption.
	Latest(ctx context.Context, configFingerprint string) (*Run, error)
}
