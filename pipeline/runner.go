package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rivergate/chronicle/cache"
	"github.com/rivergate/chronicle/document"
	"github.com/rivergate/chronicle/enrichment"
	"github.com/rivergate/chronicle/entry"
	"github.com/rivergate/chronicle/repository"
	"github.com/rivergate/chronicle/runtracker"
	"github.com/rivergate/chronicle/window"
	"github.com/rivergate/chronicle/writer"
)

const (
	retrieveTopK    = 5
	retrieveMinSim  = 0.5
	retrieveSampleN = 8
)

// Runner is the pipeline orchestrator (C10): given a Context and Params,
// it drives windowing, enrichment, retrieval, and writing to completion,
// committing one window at a time.
//
// Its steps are named methods — prepare, buildWindows, enrichWindow,
// retrieveWindow, writeWindow, commitWindow, drain — directly adapting the
// teacher's decomposition of a long orchestration function into
// independently testable steps (SPEC_FULL.md DESIGN NOTES).
type Runner struct {
	ctx     *Context
	workers *enrichment.Workers
	agent   *writer.Agent
}

// NewRunner constructs the writer agent and every enrichment worker
// exactly once, per the "centralized client instantiation" /
// "workers never construct their own client" requirement (§4.7, §4.10).
func NewRunner(pctx *Context, agentCfg writer.Config) (*Runner, error) {
	if pctx == nil {
		return nil, errors.New("pipeline: context is required")
	}
	if pctx.Repo == nil || pctx.Client == nil || pctx.Index == nil || pctx.TaskStore == nil || pctx.Tracker == nil || pctx.Source == nil {
		return nil, errors.New("pipeline: context is missing a required dependency")
	}

	agent, err := writer.NewAgent(agentCfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: construct writer agent: %w", err)
	}

	workers := enrichment.NewWorkers(pctx.Client, pctx.Repo, pctx.TaskStore, pctx.EnrichmentModel)

	return &Runner{ctx: pctx, workers: workers, agent: agent}, nil
}

// Run executes one pipeline invocation to completion or until ctx is
// cancelled. A window error that classifyFatal does not recognise (a
// RepositoryError, a transient provider error) or a failed commit returns
// without finishing the run, leaving it StatusRunning so the next
// invocation can resume it (§7); every other exit after prepare leaves
// the run in a terminal state.
func (r *Runner) Run(ctx context.Context, params Params) (*runtracker.Run, error) {
	params = params.withDefaults()

	run, resumeOrdinal, err := r.prepare(ctx, params)
	if err != nil {
		return nil, err
	}
	r.ctx.runID = run.RunID
	r.ctx.configFingerprint = run.ConfigFingerprint
	r.ctx.sourceName = r.ctx.Source.GetMetadata().SourceName

	entries, err := r.loadEntries(ctx)
	if err != nil {
		_ = r.ctx.Tracker.Finish(ctx, run.RunID, runtracker.StatusFailed, err.Error())
		return nil, fmt.Errorf("pipeline: load entries: %w", err)
	}

	queue, err := r.buildQueue(entries, params)
	if err != nil {
		_ = r.ctx.Tracker.Finish(ctx, run.RunID, runtracker.StatusFailed, err.Error())
		return nil, fmt.Errorf("pipeline: build windows: %w", err)
	}

	nextOrdinal := 0
	for queue.len() > 0 {
		if ctx.Err() != nil {
			_ = r.ctx.Tracker.Finish(context.Background(), run.RunID, runtracker.StatusCancelled, "")
			return r.ctx.Tracker.Latest(context.Background(), run.ConfigFingerprint)
		}

		job, _ := queue.pop()
		job.ordinal = nextOrdinal
		nextOrdinal++
		if job.ordinal <= resumeOrdinal {
			continue // already committed by a prior invocation
		}
		job.st = stateProcessing
		r.ctx.windowLabel = job.win.Label

		if err := r.enrichAndRetrieve(ctx, job.win); err != nil {
			if isRepositoryError(err) || !classifyFatal(err) {
				// Leaves the run StatusRunning: a repository hiccup or a
				// transient provider error (rate limit exhaustion on one
				// key, a dropped connection) should not discard the
				// cursor — the next invocation resumes at this window.
				return nil, fmt.Errorf("pipeline: window %s: %w", job.win.Label, err)
			}
			_ = r.ctx.Tracker.Finish(ctx, run.RunID, runtracker.StatusFailed, err.Error())
			return nil, fmt.Errorf("pipeline: window %s: %w: %w", job.win.Label, ErrFatal, err)
		}

		docs, writeErr := r.agent.Write(ctx, job.win)
		if writeErr != nil {
			if errors.Is(writeErr, writer.ErrPromptTooLarge) {
				if !canSplit(job, params.MaxSplitDepth, params.MinWindowSize, params.SplitFactor) {
					job.st = stateFailed
					_ = r.ctx.Tracker.Finish(ctx, run.RunID, runtracker.StatusFailed, ErrSplitBudgetExhausted.Error())
					return nil, fmt.Errorf("pipeline: window %s: %w", job.win.Label, ErrSplitBudgetExhausted)
				}
				children, splitErr := split(job, params.SplitFactor)
				if splitErr != nil {
					_ = r.ctx.Tracker.Finish(ctx, run.RunID, runtracker.StatusFailed, splitErr.Error())
					return nil, fmt.Errorf("pipeline: split window %s: %w", job.win.Label, splitErr)
				}
				for i := len(children) - 1; i >= 0; i-- {
					queue.pushFront(children[i])
				}
				continue
			}
			if isRepositoryError(writeErr) || !classifyFatal(writeErr) {
				return nil, fmt.Errorf("pipeline: window %s: write: %w", job.win.Label, writeErr)
			}
			job.st = stateFailed
			_ = r.ctx.Tracker.Finish(ctx, run.RunID, runtracker.StatusFailed, writeErr.Error())
			return nil, fmt.Errorf("pipeline: window %s: write: %w: %w", job.win.Label, ErrFatal, writeErr)
		}
		job.st = stateDone

		if err := r.drain(ctx, job.win, docs); err != nil {
			_ = r.ctx.Tracker.Finish(ctx, run.RunID, runtracker.StatusFailed, err.Error())
			return nil, fmt.Errorf("pipeline: window %s: drain: %w", job.win.Label, err)
		}

		if err := r.commit(ctx, run.RunID, job, params); err != nil {
			return nil, fmt.Errorf("pipeline: commit window %s: %w", job.win.Label, err)
		}
	}

	if err := r.ctx.Tracker.Finish(ctx, run.RunID, runtracker.StatusSucceeded, ""); err != nil && !errors.Is(err, runtracker.ErrTerminal) {
		return nil, fmt.Errorf("pipeline: finish run: %w", err)
	}
	return r.ctx.Tracker.Latest(ctx, run.ConfigFingerprint)
}

// prepare obtains or creates the Run record and determines the resumption
// cursor ordinal, applying any requested cache refresh first.
func (r *Runner) prepare(ctx context.Context, params Params) (*runtracker.Run, int, error) {
	if err := cache.Refresh(params.Refresh, r.ctx.L1.Raw(), r.ctx.L2.Raw(), r.ctx.L3.Raw()); err != nil {
		return nil, 0, fmt.Errorf("pipeline: refresh caches: %w", err)
	}

	meta := r.ctx.Source.GetMetadata()
	fingerprint, err := ComputeConfigFingerprint(params, meta)
	if err != nil {
		return nil, 0, err
	}

	if params.Resume {
		existing, err := r.ctx.Tracker.Latest(ctx, fingerprint)
		if err != nil {
			return nil, 0, fmt.Errorf("pipeline: lookup latest run: %w", err)
		}
		if existing != nil {
			resumeOrdinal := -1
			if existing.Cursor != "" {
				resumeOrdinal = existing.CursorOrdinal
			}
			switch existing.Status {
			case runtracker.StatusSucceeded, runtracker.StatusFailed, runtracker.StatusCancelled:
				// Same fingerprint already ran to completion: hand back the
				// same run/cursor lineage instead of starting a new one. The
				// window loop in Run will find nothing past resumeOrdinal
				// left to do.
				return existing, resumeOrdinal, nil
			default:
				if err := r.ctx.Tracker.Start(ctx, existing.RunID); err != nil {
					return nil, 0, fmt.Errorf("pipeline: resume run: %w", err)
				}
				return existing, resumeOrdinal, nil
			}
		}
	}

	runID, err := r.ctx.Tracker.CreateRun(ctx, fingerprint)
	if err != nil {
		return nil, 0, fmt.Errorf("pipeline: create run: %w", err)
	}
	if err := r.ctx.Tracker.Start(ctx, runID); err != nil {
		return nil, 0, fmt.Errorf("pipeline: start run: %w", err)
	}
	return &runtracker.Run{RunID: runID, ConfigFingerprint: fingerprint, Status: runtracker.StatusRunning}, -1, nil
}

// loadEntries drains the adapter's entry stream. A malformed record
// aborts the run before any window is committed (§7 InvalidInput).
func (r *Runner) loadEntries(ctx context.Context) ([]*entry.Entry, error) {
	var entries []*entry.Entry
	for e, err := range r.ctx.Source.ReadEntries(ctx) {
		if err != nil {
			return nil, fmt.Errorf("pipeline: malformed entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// buildQueue turns the entry stream into the initial FIFO of top-level
// windows in timestamp order; ordinals are assigned later, when Run pops
// each job.
func (r *Runner) buildQueue(entries []*entry.Entry, params Params) (*workQueue, error) {
	unit := window.Unit(params.WindowUnit)
	if unit == "" {
		unit = window.UnitMessages
	}
	size := params.WindowSize
	if size <= 0 {
		size = 50
	}

	seq, err := window.Create(entries, size, unit, params.OverlapRatio)
	if err != nil {
		return nil, err
	}

	q := newWorkQueue()
	for w := range seq {
		q.push(&windowJob{win: w, st: stateQueued})
	}
	return q, nil
}

// enrichAndRetrieve runs the per-window enrichment pass and the retrieval
// pre-warm concurrently, per §5's "within a window, enrichment tasks and
// retrieval run concurrently with each other; writer runs after both have
// completed."
func (r *Runner) enrichAndRetrieve(ctx context.Context, w *window.Window) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.enrichWindow(gctx, w) })
	g.Go(func() error { return r.retrieveWindow(gctx, w) })
	return g.Wait()
}

// enrichWindow extracts media referenced by the window's entries, upserts
// media documents, enqueues URL/media enrichment tasks for any not already
// enriched, and runs the URL/media worker to completion for this window's
// batch — persisted enrichment documents are observable to the writer that
// follows (§5 ordering guarantee).
func (r *Runner) enrichWindow(ctx context.Context, w *window.Window) error {
	if len(w.Entries) == 0 {
		return nil
	}

	targetDir := filepath.Join("media", sanitizeLabel(w.Label))
	mediaDocs, err := r.ctx.Source.ExtractMedia(ctx, "", targetDir)
	if err != nil {
		return fmt.Errorf("enrich: extract media: %w", err)
	}

	for ref, doc := range mediaDocs {
		if err := r.ctx.Repo.Upsert(ctx, doc); err != nil {
			return fmt.Errorf("enrich: upsert media %q: %w", ref, err)
		}

		existing, err := r.ctx.Repo.List(ctx, repository.ListOptions{Filter: repository.Filter{DocType: document.TypeEnrichment, ParentID: doc.ID}, Limit: 1})
		if err != nil {
			return fmt.Errorf("enrich: check existing enrichment for %q: %w", doc.ID, err)
		}
		if len(existing) > 0 {
			slog.Debug("enrich: skip already-enriched media", "doc", doc.ID, "prior_model", existing[0].Meta("model").String())
			continue // already enriched by a prior run; re-running must not re-issue the LLM call
		}

		task := enrichment.Task{
			ID:       "enrich:" + doc.ID,
			Kind:     enrichment.KindURLMedia,
			Target:   doc.ContentBody,
			ParentID: doc.ID,
		}
		if task.Target == "" {
			task.Target = ref
		}
		if err := r.ctx.TaskStore.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("enrich: enqueue %q: %w", doc.ID, err)
		}
	}

	rows, err := r.workers.URLMedia.Run(ctx)
	if err != nil {
		return fmt.Errorf("enrich: url/media worker: %w", err)
	}
	summary := convertEnrichedRows(rows)
	if summary.Failed > 0 {
		slog.Warn("enrich: url/media batch had failures", "window", w.Label, "processed", summary.Processed, "failed", summary.Failed, "err", errors.Join(summary.Errors...))
	}
	return nil
}

// retrieveWindow pre-warms the L2 retrieval cache for a query
// representative of the window, so the writer's rag_search tool calls are
// more likely to hit L2 during Write.
func (r *Runner) retrieveWindow(ctx context.Context, w *window.Window) error {
	if len(w.Entries) == 0 {
		return nil
	}
	var b strings.Builder
	n := len(w.Entries)
	if n > retrieveSampleN {
		n = retrieveSampleN
	}
	for _, e := range w.Entries[:n] {
		b.WriteString(e.Content)
		b.WriteString("\n")
	}
	_, err := r.ctx.Index.SearchCached(ctx, r.ctx.L2, b.String(), retrieveTopK, retrieveMinSim)
	return err
}

// drain enqueues and runs the background workers that are not on the
// critical path for this window's commit: a profile-refresh task per
// distinct author and a banner task per post the writer just persisted.
// Each worker was constructed once in NewRunner; only Run() is invoked
// here, per §4.10's "instantiated once per runner, not per window."
func (r *Runner) drain(ctx context.Context, w *window.Window, docs []*document.Document) error {
	seen := make(map[string]bool)
	for _, e := range w.Entries {
		if seen[e.AuthorID] {
			continue
		}
		seen[e.AuthorID] = true
		task := enrichment.Task{ID: "profile:" + e.AuthorID + ":" + w.Label, Kind: enrichment.KindProfile, Target: e.AuthorID}
		if err := r.ctx.TaskStore.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("drain: enqueue profile task: %w", err)
		}
	}
	for _, d := range docs {
		task := enrichment.Task{ID: "banner:" + d.ID, Kind: enrichment.KindBanner, Target: d.ContentBody, ParentID: d.ID}
		if err := r.ctx.TaskStore.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("drain: enqueue banner task: %w", err)
		}
	}

	profileRows, err := r.workers.Profile.Run(ctx)
	if err != nil {
		return fmt.Errorf("drain: profile worker: %w", err)
	}
	if s := convertEnrichedRows(profileRows); s.Failed > 0 {
		slog.Warn("drain: profile batch had failures", "window", w.Label, "processed", s.Processed, "failed", s.Failed, "err", errors.Join(s.Errors...))
	}

	bannerRows, err := r.workers.Banner.Run(ctx)
	if err != nil {
		return fmt.Errorf("drain: banner worker: %w", err)
	}
	if s := convertEnrichedRows(bannerRows); s.Failed > 0 {
		slog.Warn("drain: banner batch had failures", "window", w.Label, "processed", s.Processed, "failed", s.Failed, "err", errors.Join(s.Errors...))
	}
	return nil
}

// commit is the per-window commit point: advance the run tracker's cursor
// atomically, then (best-effort) mirror it to the on-disk checkpoint.
// Nothing past this point is re-done if the process dies before the next
// window's commit.
func (r *Runner) commit(ctx context.Context, runID string, job *windowJob, params Params) error {
	if err := r.ctx.Tracker.Advance(ctx, runID, job.win.Label, job.ordinal); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	if params.CheckpointPath != "" {
		nextAfter := job.win.EndTime
		if err := window.SaveCheckpoint(params.CheckpointPath, window.Checkpoint{Label: job.win.Label, NextEntryAfter: nextAfter}); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}
	return nil
}

func isRepositoryError(err error) bool {
	var repoErr *repository.RepositoryError
	return errors.As(err, &repoErr)
}

func sanitizeLabel(label string) string {
	return strings.ReplaceAll(label, "/", "_")
}
