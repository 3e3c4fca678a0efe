// Package rag implements the RAG index (C4): an asymmetric-embedding
// vector store over posts (by default). IndexOne goes through the same
// path as bulk IndexDocuments, whose Embed calls are capped by a small
// concurrency limiter; Search embeds directly, outside that limiter.
// There is no separate queue or router for single versus bulk requests.
package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rivergate/chronicle/cache"
	"github.com/rivergate/chronicle/document"
	"github.com/rivergate/chronicle/llm"
	pkgsync "github.com/rivergate/chronicle/pkg/sync"
)

// defaultEmbedConcurrency bounds how many Embed calls IndexDocuments can
// have in flight at once across concurrent IndexOne callers (the writer
// indexes each post as soon as it's persisted), so a burst of posts never
// opens more concurrent embedding requests than the provider tolerates.
const defaultEmbedConcurrency = 4

// ErrMixedRole signals that a caller tried to embed both Document- and
// Query-role texts in the same call. Mixing roles is a programming error,
// rejected at the boundary rather than silently handled.
var ErrMixedRole = errors.New("rag: cannot mix document and query roles in one embed call")

// Embedder generates asymmetric embeddings: the same text embeds to a
// different vector depending on whether it is being indexed (Role =
// Document) or used to query the index (Role = Query).
type Embedder interface {
	Embed(ctx context.Context, texts []string, role llm.EmbedRole) ([][]float32, error)
	Dimensionality() int
}

// ClientEmbedder adapts an *llm.Client + model name to Embedder.
type ClientEmbedder struct {
	Client *llm.Client
	Model  string
	Dim    int
}

func (e *ClientEmbedder) Embed(ctx context.Context, texts []string, role llm.EmbedRole) ([][]float32, error) {
	return e.Client.Embed(ctx, e.Model, texts, role)
}

func (e *ClientEmbedder) Dimensionality() int { return e.Dim }

// Hit is a single ranked search result.
type Hit struct {
	DocID string
	Score float64
}

// Store is the vector-store contract a concrete backend (e.g. Qdrant)
// implements. Index is content-addressed by document id: re-indexing an id
// replaces its vector rather than duplicating it.
type Store interface {
	Index(ctx context.Context, docID string, vector []float32, payload map[string]any) error
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	Dimensionality(ctx context.Context) (int, error)
}

// Index is the RAG index: configurable indexable types, backed by a Store
// and an Embedder. Only the indexing path acquires embedLimit; Search
// does not.
type Index struct {
	store          Store
	embedder       Embedder
	indexableTypes map[document.Type]bool

	mu  sync.Mutex
	dim int // cached dimensionality, 0 until first observed

	embedLimit *pkgsync.Limiter

	// version increments on every successful IndexDocuments/IndexOne call.
	// It stands in for the "index version hash" the L2 retrieval cache key
	// is built from (SPEC_FULL.md C5): any document change in the active
	// set must invalidate every cached retrieval, and a version counter is
	// the cheapest thing that changes exactly when that happens.
	version uint64
}

// Config bundles Index construction dependencies.
type Config struct {
	Store          Store
	Embedder       Embedder
	IndexableTypes []document.Type // defaults to []document.Type{document.TypePost}
}

func NewIndex(cfg Config) (*Index, error) {
	if cfg.Store == nil {
		return nil, errors.New("rag: store is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("rag: embedder is required")
	}
	types := cfg.IndexableTypes
	if len(types) == 0 {
		types = []document.Type{document.TypePost}
	}
	set := make(map[document.Type]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return &Index{
		store:          cfg.Store,
		embedder:       cfg.Embedder,
		indexableTypes: set,
		embedLimit:     pkgsync.NewLimiter(defaultEmbedConcurrency),
	}, nil
}

// Indexable reports whether docType is configured for this index.
func (idx *Index) Indexable(docType document.Type) bool {
	return idx.indexableTypes[docType]
}

// IndexDocuments is the bulk path: it batches every doc through one Embed
// call with Role=Document, then writes each vector through Store.Index.
// Used for reindexing after a publish and for initial backfill.
func (idx *Index) IndexDocuments(ctx context.Context, docs []*document.Document) error {
	var eligible []*document.Document
	for _, d := range docs {
		if idx.Indexable(d.DocType) {
			eligible = append(eligible, d)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	texts := make([]string, len(eligible))
	for i, d := range eligible {
		texts[i] = d.Title + "\n\n" + d.ContentBody
	}

	idx.embedLimit.Acquire()
	vectors, err := idx.embedder.Embed(ctx, texts, llm.EmbedRoleDocument)
	idx.embedLimit.Release()
	if err != nil {
		return fmt.Errorf("rag: index documents: %w", err)
	}

	idx.observeDim(vectors)

	for i, d := range eligible {
		payload := map[string]any{"doc_type": string(d.DocType), "title": d.Title}
		if err := idx.store.Index(ctx, d.ID, vectors[i], payload); err != nil {
			return fmt.Errorf("rag: index document %q: %w", d.ID, err)
		}
	}
	idx.mu.Lock()
	idx.version++
	idx.mu.Unlock()
	return nil
}

// IndexVersionHash identifies the current state of the active set for the
// L2 retrieval cache key: it changes whenever any document is indexed or
// reindexed, so a cached retrieval can never outlive the set it was
// computed over.
func (idx *Index) IndexVersionHash() string {
	idx.mu.Lock()
	v := idx.version
	idx.mu.Unlock()
	return cache.ContentHash("ragv", fmt.Sprintf("%d", v))
}

// IndexOne is the low-latency single-document path used by the writer
// after persisting a new post.
func (idx *Index) IndexOne(ctx context.Context, d *document.Document) error {
	return idx.IndexDocuments(ctx, []*document.Document{d})
}

// Search embeds query with Role=Query and returns at most topK hits scoring
// at or above minSimilarity. When the store's dimensionality differs from
// the query vector's, it calls Rebuild before searching; for a store that
// does not implement Rebuildable, Rebuild does nothing and the search runs
// against the store as it is.
func (idx *Index) Search(ctx context.Context, query string, topK int, minSimilarity float64) ([]Hit, error) {
	vectors, err := idx.embedder.Embed(ctx, []string{query}, llm.EmbedRoleQuery)
	if err != nil {
		return nil, fmt.Errorf("rag: search embed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, errors.New("rag: embedder returned unexpected vector count")
	}

	storeDim, err := idx.store.Dimensionality(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}
	if storeDim != 0 && storeDim != len(vectors[0]) {
		if err := idx.Rebuild(ctx); err != nil {
			return nil, fmt.Errorf("rag: dimensionality mismatch, rebuild failed: %w", err)
		}
	}

	hits, err := idx.store.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}

	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= minSimilarity {
			out = append(out, h)
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// SearchCached is Search fronted by the L2 retrieval tier: the key is the
// hash of the query text plus the index's current version, so a cache hit
// is only ever served for a query run against the exact document set it
// was computed over. A miss falls through to Search and populates l2.
func (idx *Index) SearchCached(ctx context.Context, l2 *cache.L2Retrieval, query string, topK int, minSimilarity float64) ([]Hit, error) {
	queryHash := cache.ContentHash("q", query, fmt.Sprintf("%d-%.4f", topK, minSimilarity))
	indexVersionHash := idx.IndexVersionHash()

	if raw, err := l2.Get(queryHash, indexVersionHash); err == nil {
		var hits []Hit
		if uerr := json.Unmarshal(raw, &hits); uerr == nil {
			return hits, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		return nil, fmt.Errorf("rag: l2 cache get: %w", err)
	}

	hits, err := idx.Search(ctx, query, topK, minSimilarity)
	if err != nil {
		return nil, err
	}

	if raw, merr := json.Marshal(hits); merr == nil {
		_ = l2.Put(queryHash, indexVersionHash, raw)
	}
	return hits, nil
}

func (idx *Index) observeDim(vectors [][]float32) {
	if len(vectors) == 0 {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.dim == 0 {
		idx.dim = len(vectors[0])
	}
}

// Rebuildable is implemented by stores that can recreate their collection
// under a new dimensionality (e.g. the Qdrant store deleting and
// recreating its collection). Stores that cannot rebuild simply don't
// implement it, and Rebuild becomes a no-op for them.
type Rebuildable interface {
	Rebuild(ctx context.Context, dim int) error
}

// Rebuild drops and recreates the backing store's collection under the
// embedder's current dimensionality, called when Search observes a stored
// dimensionality mismatch.
func (idx *Index) Rebuild(ctx context.Context) error {
	r, ok := idx.store.(Rebuildable)
	if !ok {
		return nil
	}
	idx.mu.Lock()
	dim := idx.embedder.Dimensionality()
	idx.mu.Unlock()
	return r.Rebuild(ctx, dim)
}
