package pipeline

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivergate/chronicle/adapter"
	"github.com/rivergate/chronicle/cache"
	"github.com/rivergate/chronicle/document"
	"github.com/rivergate/chronicle/entry"
	"github.com/rivergate/chronicle/enrichment"
	"github.com/rivergate/chronicle/llm"
	"github.com/rivergate/chronicle/llm/ratelimit"
	pkgsync "github.com/rivergate/chronicle/pkg/sync"
	"github.com/rivergate/chronicle/rag"
	"github.com/rivergate/chronicle/repository"
	"github.com/rivergate/chronicle/runtracker"
	"github.com/rivergate/chronicle/writer"
)

// fakeSource is a minimal in-memory adapter.Source for exercising the
// runner without a real input adapter.
type fakeSource struct {
	entries []*entry.Entry
	meta    adapter.Metadata
}

func (s *fakeSource) ReadEntries(ctx context.Context) iter.Seq2[*entry.Entry, error] {
	return func(yield func(*entry.Entry, error) bool) {
		for _, e := range s.entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (s *fakeSource) ExtractMedia(ctx context.Context, root, targetDir string) (map[string]*document.Document, error) {
	return map[string]*document.Document{}, nil
}

func (s *fakeSource) GetMetadata() adapter.Metadata { return s.meta }

// fakeRAGStore/fakeEmbedder back a real *rag.Index, the same shape the
// writer package's own tests use.
type fakeRAGStore struct{}

func (fakeRAGStore) Index(ctx context.Context, docID string, vector []float32, payload map[string]any) error {
	return nil
}
func (fakeRAGStore) Search(ctx context.Context, vector []float32, topK int) ([]rag.Hit, error) {
	return nil, nil
}
func (fakeRAGStore) Dimensionality(ctx context.Context) (int, error) { return 3, nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string, role llm.EmbedRole) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{0.1, 0.2, 0.3}
	}
	return vecs, nil
}
func (fakeEmbedder) Dimensionality() int { return 3 }

// scriptedBackend replies with one scripted response per Call.
type scriptedBackend struct {
	responses []*llm.Response
	calls     int
}

func (b *scriptedBackend) Name() string { return "model-a" }
func (b *scriptedBackend) Call(ctx context.Context, apiKey string, messages []llm.Message, settings llm.Settings) (*llm.Response, error) {
	if b.calls >= len(b.responses) {
		return &llm.Response{Content: "[]", Model: "model-a"}, nil
	}
	resp := b.responses[b.calls]
	b.calls++
	return resp, nil
}
func (b *scriptedBackend) Stream(ctx context.Context, apiKey string, messages []llm.Message, settings llm.Settings) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("unsupported")
}
func (b *scriptedBackend) SubmitBatch(ctx context.Context, apiKey string, reqs []llm.BatchRequest) (llm.BatchHandle, error) {
	return llm.BatchHandle{}, errors.New("unsupported")
}
func (b *scriptedBackend) Poll(ctx context.Context, apiKey string, handle llm.BatchHandle) (llm.BatchPoll, error) {
	return llm.BatchPoll{}, errors.New("unsupported")
}
func (b *scriptedBackend) Embed(ctx context.Context, apiKey string, texts []string, role llm.EmbedRole) ([][]float32, error) {
	return nil, errors.New("unsupported")
}

func newTestEntries(t *testing.T, n int) []*entry.Entry {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var out []*entry.Entry
	for i := 0; i < n; i++ {
		e, err := entry.New(
			"e"+string(rune('0'+i)), "test-source", start.Add(time.Duration(i)*time.Minute),
			"author-1", "message body", entry.WithAuthorDisplay("Alice"),
		)
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func newTestRunner(t *testing.T, backend llm.ProviderBackend, src *fakeSource) (*Runner, *Context) {
	t.Helper()

	kr := llm.NewKeyRing([]string{"model-a"}, map[string][]llm.Credential{"model-a": {{Key: "k1"}}})
	limiter := ratelimit.New(1000, 100, pkgsync.PoolOfNoPool())
	client, err := llm.NewClient(llm.Config{
		Backends:    map[string]llm.ProviderBackend{"model-a": backend},
		KeyRing:     kr,
		Limiter:     limiter,
		IsRateLimit: func(error) bool { return false },
	})
	require.NoError(t, err)

	index, err := rag.NewIndex(rag.Config{Store: fakeRAGStore{}, Embedder: fakeEmbedder{}})
	require.NoError(t, err)

	dir := t.TempDir()
	repo, err := repository.OpenFileStore(filepath.Join(dir, "docs.log"))
	require.NoError(t, err)
	tracker, err := runtracker.OpenFileTracker(filepath.Join(dir, "runs.gob"))
	require.NoError(t, err)

	tierDir := t.TempDir()
	l1Store, err := cache.OpenFileTier(filepath.Join(tierDir, "l1"))
	require.NoError(t, err)
	l2Store, err := cache.OpenFileTier(filepath.Join(tierDir, "l2"))
	require.NoError(t, err)
	l3Store, err := cache.OpenFileTier(filepath.Join(tierDir, "l3"))
	require.NoError(t, err)

	pctx := &Context{
		Repo:            repo,
		Client:          client,
		Index:           index,
		TaskStore:       enrichment.NewMemTaskStore(),
		Tracker:         tracker,
		L1:              cache.NewL1Assets(l1Store, time.Hour),
		L2:              cache.NewL2Retrieval(l2Store, time.Hour),
		L3:              cache.NewL3WriterOutput(l3Store, time.Hour),
		Source:          src,
		EnrichmentModel: "model-a",
	}

	runner, err := NewRunner(pctx, writer.Config{
		Client: client, Index: index, Repo: repo, L3: pctx.L3, Metadata: pctx,
	})
	require.NoError(t, err)
	return runner, pctx
}

func TestRunner_Run_CommitsWindowsAndSucceeds(t *testing.T) {
	src := &fakeSource{
		entries: newTestEntries(t, 3),
		meta:    adapter.Metadata{SourceName: "test-source", Version: "v1", SchemaVersion: "1"},
	}
	backend := &scriptedBackend{responses: []*llm.Response{
		{Content: `[{"title":"Hello Thread","content":"a summary","authors":["author-1"]}]`, Model: "model-a"},
	}}
	runner, _ := newTestRunner(t, backend, src)

	run, err := runner.Run(context.Background(), Params{WindowSize: 10, WindowUnit: "messages"})
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, runtracker.StatusSucceeded, run.Status)
	assert.Equal(t, 1, backend.calls)
}

func TestRunner_Run_ResumeSkipsCommittedWindow(t *testing.T) {
	src := &fakeSource{
		entries: newTestEntries(t, 3),
		meta:    adapter.Metadata{SourceName: "test-source", Version: "v1", SchemaVersion: "1"},
	}
	backend := &scriptedBackend{responses: []*llm.Response{
		{Content: `[{"title":"Hello Thread","content":"a summary","authors":["author-1"]}]`, Model: "model-a"},
	}}
	runner, _ := newTestRunner(t, backend, src)

	params := Params{WindowSize: 10, WindowUnit: "messages", Resume: true}
	first, err := runner.Run(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, runtracker.StatusSucceeded, first.Status)

	second, err := runner.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, second.RunID, "resuming a succeeded fingerprint should not start a new run lineage on CreateRun")
}

func TestConvertEnrichedRows_CountsSuccessesAndFailures(t *testing.T) {
	rows := []enrichment.Result{
		{Task: enrichment.Task{ID: "a"}, DocID: "doc-a"},
		{Task: enrichment.Task{ID: "b"}, Err: errors.New("boom")},
		{Task: enrichment.Task{ID: "c"}, DocID: "doc-c"},
	}
	summary := convertEnrichedRows(rows)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.ElementsMatch(t, []string{"doc-a", "doc-c"}, summary.DocIDs)
	require.Len(t, summary.Errors, 1)
}
