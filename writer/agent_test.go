package writer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivergate/chronicle/cache"
	"github.com/rivergate/chronicle/document"
	"github.com/rivergate/chronicle/entry"
	"github.com/rivergate/chronicle/llm"
	"github.com/rivergate/chronicle/llm/ratelimit"
	pkgsync "github.com/rivergate/chronicle/pkg/sync"
	"github.com/rivergate/chronicle/rag"
	"github.com/rivergate/chronicle/repository"
	"github.com/rivergate/chronicle/window"
)

// fakeRepo is an in-memory repository.Store fake, grounded on the same
// broker.MockBroker-style pattern used by the enrichment package's tests.
type fakeRepo struct {
	docs map[string]*document.Document
}

func newFakeRepo() *fakeRepo { return &fakeRepo{docs: make(map[string]*document.Document)} }

func repoKey(id string, t document.Type) string { return string(t) + ":" + id }

func (r *fakeRepo) Get(ctx context.Context, id string, t document.Type) (*document.Document, error) {
	d, ok := r.docs[repoKey(id, t)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return d, nil
}

func (r *fakeRepo) List(ctx context.Context, opts repository.ListOptions) ([]*document.Document, error) {
	var out []*document.Document
	for _, d := range r.docs {
		if opts.Filter.DocType != "" && d.DocType != opts.Filter.DocType {
			continue
		}
		if opts.Filter.ParentID != "" && d.ParentID != opts.Filter.ParentID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *fakeRepo) Upsert(ctx context.Context, d *document.Document) error {
	r.docs[repoKey(d.ID, d.DocType)] = d
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id string, t document.Type) error {
	delete(r.docs, repoKey(id, t))
	return nil
}

func (r *fakeRepo) RecentPosts(ctx context.Context, limit int) ([]*document.Document, error) {
	var out []*document.Document
	for _, d := range r.docs {
		if d.DocType == document.TypePost {
			out = append(out, d)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) Close() error { return nil }

// fakeRAGStore/fakeEmbedder back a real *rag.Index with no external vector
// database.
type fakeRAGStore struct {
	indexed map[string][]float32
}

func (s *fakeRAGStore) Index(ctx context.Context, docID string, vector []float32, payload map[string]any) error {
	s.indexed[docID] = vector
	return nil
}
func (s *fakeRAGStore) Search(ctx context.Context, vector []float32, topK int) ([]rag.Hit, error) {
	return []rag.Hit{{DocID: "past-post", Score: 0.9}}, nil
}
func (s *fakeRAGStore) Dimensionality(ctx context.Context) (int, error) { return 3, nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string, role llm.EmbedRole) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{0.1, 0.2, 0.3}
	}
	return vecs, nil
}
func (fakeEmbedder) Dimensionality() int { return 3 }

// fakeTier is an in-memory cache.Tier.
type fakeTier struct {
	values map[string][]byte
}

func newFakeTier() *fakeTier { return &fakeTier{values: make(map[string][]byte)} }

func (t *fakeTier) Get(key string) ([]byte, error) {
	v, ok := t.values[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}
func (t *fakeTier) Put(key string, value []byte, ttl time.Duration) error {
	t.values[key] = value
	return nil
}
func (t *fakeTier) Invalidate(scope string) error {
	t.values = make(map[string][]byte)
	return nil
}

// scriptedBackend replies with the next entry in responses on each Call,
// and counts invocations so tests can assert the L3 cache short-circuits it.
type scriptedBackend struct {
	responses []*llm.Response
	calls     int
}

func (b *scriptedBackend) Name() string { return "model-a" }
func (b *scriptedBackend) Call(ctx context.Context, apiKey string, messages []llm.Message, settings llm.Settings) (*llm.Response, error) {
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

type fakeMetadata struct{}

func (fakeMetadata) Metadata() PipelineMetadata {
	return PipelineMetadata{RunID: "run-1", ConfigFingerprint: "fp-1", SourceName: "test", WindowLabel: "window-0000"}
}

func newTestAgent(t *testing.T, backend llm.ProviderBackend) (*Agent, *fakeRepo, *fakeTier) {
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

	index, err := rag.NewIndex(rag.Config{Store: &fakeRAGStore{indexed: make(map[string][]float32)}, Embedder: fakeEmbedder{}})
	require.NoError(t, err)

	repo := newFakeRepo()
	tier := newFakeTier()
	l3 := cache.NewL3WriterOutput(tier, time.Hour)

	agent, err := NewAgent(Config{Client: client, Index: index, Repo: repo, L3: l3, Metadata: fakeMetadata{}})
	require.NoError(t, err)
	return agent, repo, tier
}

func testWindow(t *testing.T) *window.Window {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e1, err := entry.New("e1", "test", start, "author-1", "hello there", entry.WithAuthorDisplay("Alice"))
	require.NoError(t, err)
	e2, err := entry.New("e2", "test", start.Add(time.Minute), "author-1", "a follow-up message")
	require.NoError(t, err)
	return &window.Window{Label: "window-0000", StartTime: start, EndTime: start.Add(time.Minute), Size: 2, Entries: []*entry.Entry{e1, e2}}
}

func TestAgent_Write_PersistsPostsFromModelOutput(t *testing.T) {
	backend := &scriptedBackend{responses: []*llm.Response{
		{Content: `[{"title":"Hello Thread","content":"a summary","authors":["author-1"]}]`},
	}}
	agent, repo, _ := newTestAgent(t, backend)

	docs, err := agent.Write(context.Background(), testWindow(t))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "hello-thread-window-0000-0", docs[0].ID)
	assert.Equal(t, document.TypePost, docs[0].DocType)
	assert.True(t, docs[0].CreatedAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), "post date must be the window start time")
	assert.Len(t, repo.docs, 1)
	assert.Equal(t, 1, backend.calls)
}

func TestAgent_Write_UsesL3CacheOnSecondCall(t *testing.T) {
	backend := &scriptedBackend{responses: []*llm.Response{
		{Content: `[{"title":"Hello Thread","content":"a summary","authors":["author-1"]}]`},
	}}
	agent, _, _ := newTestAgent(t, backend)
	w := testWindow(t)

	_, err := agent.Write(context.Background(), w)
	require.NoError(t, err)
	_, err = agent.Write(context.Background(), w)
	require.NoError(t, err)

	assert.Equal(t, 1, backend.calls, "second write for the same window must hit the L3 cache, not the model")
}

func TestAgent_Write_EmptyWindowReturnsNoPosts(t *testing.T) {
	backend := &scriptedBackend{}
	agent, _, _ := newTestAgent(t, backend)

	docs, err := agent.Write(context.Background(), &window.Window{Label: "window-empty"})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, 0, backend.calls)
}

func TestAgent_Write_ModelEmitsNoPostsForUninterestingWindow(t *testing.T) {
	backend := &scriptedBackend{responses: []*llm.Response{{Content: `[]`}}}
	agent, repo, _ := newTestAgent(t, backend)

	docs, err := agent.Write(context.Background(), testWindow(t))
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Empty(t, repo.docs)
}

func TestAgent_Write_DrivesToolCallLoopBeforeFinalAnswer(t *testing.T) {
	backend := &scriptedBackend{responses: []*llm.Response{
		{
			Content:   "",
			ToolCalls: []llm.ToolCall{{ID: "call-1", Name: toolRecentPosts, Arguments: `{"limit":5}`}},
		},
		{Content: `[{"title":"Follow Up","content":"builds on recent posts","authors":["author-1"]}]`},
	}}
	agent, repo, _ := newTestAgent(t, backend)

	docs, err := agent.Write(context.Background(), testWindow(t))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 2, backend.calls)
	assert.Len(t, repo.docs, 1)
}

func TestSanitizeDate_DefaultsToWindowStart(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err := sanitizeDate(start.Format(time.RFC3339), start)
	require.NoError(t, err)
	assert.True(t, got.Equal(start))
}

func TestSanitizeDate_RejectsRange(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := sanitizeDate("2026-03-01 to 2026-03-02", start)
	assert.Error(t, err)
}

func TestSanitizeDate_RejectsUnparseable(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := sanitizeDate("not-a-date", start)
	assert.Error(t, err)
}
