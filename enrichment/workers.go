package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rivergate/chronicle/document"
	"github.com/rivergate/chronicle/flow"
	"github.com/rivergate/chronicle/llm"
	"github.com/rivergate/chronicle/pkg/result"
	"github.com/rivergate/chronicle/repository"
)

// BatchThreshold is the claimed-batch size above which a worker submits
// through the provider's batch API instead of issuing concurrent single
// calls.
const BatchThreshold = 20

// defaultClaimSize is how many pending tasks a single Run call claims.
const defaultClaimSize = 50

// defaultConcurrency bounds concurrent single-call requests below
// BatchThreshold, backed by flow.Batch.WithConcurrencyLimit.
const defaultConcurrency = 4

// pollInterval is the cooperative delay between batch-poll attempts.
const pollInterval = 500 * time.Millisecond

// Result is the one shape every worker reports through: one entry per
// claimed task, success or failure. The pipeline runner's
// convertEnrichedRows is the single place that turns a []Result into
// whatever its caller needs, rather than each worker inventing its own
// tabular-result shape.
type Result struct {
	TaskID string
	Kind   Kind
	DocID  string // empty on failure
	Err    error  // nil on success
}

// promptBuilder renders the messages sent to the LLM for one task.
type promptBuilder func(Task) []llm.Message

// persister turns a task and its model response into a Document and writes
// it via the repository, returning the persisted document's id.
type persister func(ctx context.Context, t Task, resp *llm.Response) (string, error)

// worker bundles the shared claim -> (single|batch) -> persist machinery
// used by URLMediaWorker, ProfileWorker and BannerWorker. It is unexported:
// callers only see the typed wrappers below, per the "workers never
// construct their own client" / "data-in data-out" requirements.
type worker struct {
	kind    Kind
	client  *llm.Client
	repo    repository.Store
	store   TaskStore
	model   string
	prompt  promptBuilder
	persist persister
}

// Run claims a batch of pending tasks and processes all of them, returning
// one Result per claimed task. Per-item failures are recorded in the
// TaskStore and do not abort the batch.
func (w *worker) Run(ctx context.Context) ([]Result, error) {
	tasks, err := w.store.Claim(ctx, w.kind, defaultClaimSize)
	if err != nil {
		return nil, fmt.Errorf("enrichment: claim: %w", err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	if len(tasks) > BatchThreshold {
		return w.runBatch(ctx, tasks)
	}
	return w.runSingle(ctx, tasks)
}

// runSingle issues one llm.Client.Request per task, bounded to
// defaultConcurrency concurrent in-flight calls via flow.Batch.
func (w *worker) runSingle(ctx context.Context, tasks []Task) ([]Result, error) {
	b := flow.NewBatch[[]Task, []Result, Task, Result]().
		WithConcurrencyLimit(defaultConcurrency).
		WithContinueOnError().
		WithSegmenter(func(ctx context.Context, in []Task) ([]Task, error) { return in, nil }).
		WithProcessor(func(ctx context.Context, t Task) (Result, error) {
			resp, err := w.client.Request(ctx, w.prompt(t), llm.Settings{})
			if err != nil {
				_ = w.store.MarkFailed(ctx, t.ID, err)
				// Every outcome, including a fatal provider error, is
				// reported through Result.Err rather than the processor's
				// own error return, so one task's failure never drops it
				// from the batch's result set.
				return Result{TaskID: t.ID, Kind: t.Kind, Err: err}, nil
			}
			return w.finish(ctx, t, resp), nil
		}).
		WithAggregator(func(ctx context.Context, results []Result) ([]Result, error) { return results, nil })
	return b.Run(ctx, tasks)
}

// runBatch submits every task through the provider's batch endpoint and
// polls cooperatively until the batch completes or fails.
func (w *worker) runBatch(ctx context.Context, tasks []Task) ([]Result, error) {
	reqs := make([]llm.BatchRequest, len(tasks))
	for i, t := range tasks {
		reqs[i] = llm.BatchRequest{Messages: w.prompt(t), Settings: llm.Settings{}}
	}

	handle, err := w.client.SubmitBatch(ctx, reqs)
	if err != nil {
		for _, t := range tasks {
			_ = w.store.MarkFailed(ctx, t.ID, err)
		}
		return nil, fmt.Errorf("enrichment: submit batch: %w", err)
	}

	for {
		poll, err := w.client.Poll(ctx, handle)
		if err != nil {
			return nil, fmt.Errorf("enrichment: poll batch: %w", err)
		}
		switch poll.State {
		case llm.BatchDone:
			return w.finishBatch(ctx, tasks, poll.Results), nil
		case llm.BatchFailed:
			for _, t := range tasks {
				_ = w.store.MarkFailed(ctx, t.ID, poll.Err)
			}
			return nil, fmt.Errorf("enrichment: batch failed: %w", poll.Err)
		default: // llm.BatchPending — yield to the scheduler and poll again
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	}
}

func (w *worker) finishBatch(ctx context.Context, tasks []Task, results []llm.BatchResult) []Result {
	out := make([]Result, 0, len(tasks))
	for i, t := range tasks {
		if i >= len(results) {
			err := errors.New("enrichment: missing batch result")
			_ = w.store.MarkFailed(ctx, t.ID, err)
			out = append(out, Result{TaskID: t.ID, Kind: t.Kind, Err: err})
			continue
		}
		// result.Result unifies the (value, error) pair the batch API
		// hands back per-request with the same Get() shape used for a
		// single-call response, so finish's error branch isn't
		// duplicated per call site.
		res := result.New(results[i].Response, results[i].Err)
		resp, err := res.Get()
		if err != nil {
			_ = w.store.MarkFailed(ctx, t.ID, err)
			out = append(out, Result{TaskID: t.ID, Kind: t.Kind, Err: err})
			continue
		}
		out = append(out, w.finish(ctx, t, resp))
	}
	return out
}

func (w *worker) finish(ctx context.Context, t Task, resp *llm.Response) Result {
	docID, err := w.persist(ctx, t, resp)
	if err != nil {
		_ = w.store.MarkFailed(ctx, t.ID, err)
		return Result{TaskID: t.ID, Kind: t.Kind, Err: err}
	}
	if err := w.store.MarkDone(ctx, t.ID); err != nil {
		return Result{TaskID: t.ID, Kind: t.Kind, Err: err}
	}
	return Result{TaskID: t.ID, Kind: t.Kind, DocID: docID}
}

// URLMediaWorker enriches a raw link or media handle by asking the model
// for a text description, persisted as an enrichment document linked to
// the media document via ParentID.
type URLMediaWorker struct{ w *worker }

func (u *URLMediaWorker) Run(ctx context.Context) ([]Result, error) { return u.w.Run(ctx) }

// ProfileWorker aggregates an author's recent contributions into a
// profile document keyed by author id.
type ProfileWorker struct{ w *worker }

func (p *ProfileWorker) Run(ctx context.Context) ([]Result, error) { return p.w.Run(ctx) }

// BannerWorker produces a banner document tied to a post via ParentID —
// supplemented from the original implementation's background-worker list,
// since the Document model already names `banner` as a doc_type.
type BannerWorker struct{ w *worker }

func (b *BannerWorker) Run(ctx context.Context) ([]Result, error) { return b.w.Run(ctx) }

// Workers bundles one instance of each worker kind, constructed exactly
// once per pipeline runner and invoked between windows.
type Workers struct {
	URLMedia *URLMediaWorker
	Profile  *ProfileWorker
	Banner   *BannerWorker
}

// NewWorkers is the single factory producing every enrichment worker.
// Workers never construct their own LLM client or repository.
func NewWorkers(client *llm.Client, repo repository.Store, store TaskStore, model string) *Workers {
	now := func() time.Time { return time.Now().UTC() }

	urlMedia := &worker{
		kind: KindURLMedia, client: client, repo: repo, store: store, model: model,
		prompt: func(t Task) []llm.Message {
			return []llm.Message{
				{Role: llm.RoleSystem, Content: "Describe the linked media or URL in two sentences, suitable as alt text."},
				{Role: llm.RoleUser, Content: t.Target},
			}
		},
		persist: func(ctx context.Context, t Task, resp *llm.Response) (string, error) {
			id := "enrichment:" + t.ID
			ts := now()
			d, err := document.New(id, document.TypeEnrichment, "Media enrichment for "+t.Target,
				nil, resp.Content, document.ContentTypePlain, ts, ts,
				document.WithParentID(t.ParentID),
				document.WithMetadata(map[string]any{"model": resp.Model, "kind": string(t.Kind)}))
			if err != nil {
				return "", err
			}
			if err := repo.Upsert(ctx, d); err != nil {
				return "", err
			}
			return id, nil
		},
	}

	profile := &worker{
		kind: KindProfile, client: client, repo: repo, store: store, model: model,
		prompt: func(t Task) []llm.Message {
			return []llm.Message{
				{Role: llm.RoleSystem, Content: "Summarize this author's recent contributions into a short profile."},
				{Role: llm.RoleUser, Content: t.Target},
			}
		},
		persist: func(ctx context.Context, t Task, resp *llm.Response) (string, error) {
			ts := now()
			d, err := document.New(t.Target, document.TypeProfile, "Profile: "+t.Target,
				[]string{t.Target}, resp.Content, document.ContentTypePlain, ts, ts,
				document.WithMetadata(map[string]any{"model": resp.Model, "kind": string(t.Kind)}))
			if err != nil {
				return "", err
			}
			if err := repo.Upsert(ctx, d); err != nil {
				return "", err
			}
			return t.Target, nil
		},
	}

	banner := &worker{
		kind: KindBanner, client: client, repo: repo, store: store, model: model,
		prompt: func(t Task) []llm.Message {
			return []llm.Message{
				{Role: llm.RoleSystem, Content: "Write a one-line banner caption summarizing this post."},
				{Role: llm.RoleUser, Content: t.Target},
			}
		},
		persist: func(ctx context.Context, t Task, resp *llm.Response) (string, error) {
			id := "banner:" + t.ParentID
			ts := now()
			d, err := document.New(id, document.TypeBanner, "Banner for "+t.ParentID,
				nil, resp.Content, document.ContentTypePlain, ts, ts,
				document.WithParentID(t.ParentID),
				document.WithMetadata(map[string]any{"model": resp.Model, "kind": string(t.Kind)}))
			if err != nil {
				return "", err
			}
			if err := repo.Upsert(ctx, d); err != nil {
				return "", err
			}
			return id, nil
		},
	}

	return &Workers{
		URLMedia: &URLMediaWorker{w: urlMedia},
		Profile:  &ProfileWorker{w: profile},
		Banner:   &BannerWorker{w: banner},
	}
}
