package cache

import "time"

// L1Assets caches asset-enrichment results keyed by the content hash of
// the asset URI plus the enrichment prompt version.
type L1Assets struct {
	store Tier
	ttl   time.Duration
}

func NewL1Assets(store Tier, ttl time.Duration) *L1Assets {
	return &L1Assets{store: store, ttl: ttl}
}

func (l *L1Assets) Key(assetURI, promptVersion string) string {
	return ContentHash("l1", assetURI, promptVersion)
}

func (l *L1Assets) Get(assetURI, promptVersion string) ([]byte, error) {
	return l.store.Get(l.Key(assetURI, promptVersion))
}

func (l *L1Assets) Put(assetURI, promptVersion string, value []byte) error {
	return l.store.Put(l.Key(assetURI, promptVersion), value, l.ttl)
}

func (l *L1Assets) Invalidate() error {
	return l.store.Invalidate("*")
}

// Raw exposes the backing Tier for callers that need to pass it to a
// tier-agnostic operation such as Refresh.
func (l *L1Assets) Raw() Tier { return l.store }

// L2Retrieval caches RAG retrieval results keyed by the query embedding
// hash plus the index version hash. Nothing invalidates it on a document
// change; any reindex changes the index version hash instead, so entries
// cached against the earlier document set are no longer looked up.
type L2Retrieval struct {
	store Tier
	ttl   time.Duration
}

func NewL2Retrieval(store Tier, ttl time.Duration) *L2Retrieval {
	return &L2Retrieval{store: store, ttl: ttl}
}

func (l *L2Retrieval) Key(queryEmbeddingHash, indexVersionHash string) string {
	return ContentHash("l2", queryEmbeddingHash, indexVersionHash)
}

func (l *L2Retrieval) Get(queryEmbeddingHash, indexVersionHash string) ([]byte, error) {
	return l.store.Get(l.Key(queryEmbeddingHash, indexVersionHash))
}

func (l *L2Retrieval) Put(queryEmbeddingHash, indexVersionHash string, value []byte) error {
	return l.store.Put(l.Key(queryEmbeddingHash, indexVersionHash), value, l.ttl)
}

func (l *L2Retrieval) Invalidate() error {
	return l.store.Invalidate("*")
}

// Raw exposes the backing Tier for callers that need to pass it to a
// tier-agnostic operation such as Refresh.
func (l *L2Retrieval) Raw() Tier { return l.store }

// L3WriterOutput caches writer output keyed by the semantic hash of
// {window fingerprint, enrichments fingerprint, retrieval context
// fingerprint, writer prompt version}.
type L3WriterOutput struct {
	store Tier
	ttl   time.Duration
}

func NewL3WriterOutput(store Tier, ttl time.Duration) *L3WriterOutput {
	return &L3WriterOutput{store: store, ttl: ttl}
}

// SemanticHash is the one key-derivation path for L3: every caller builds
// its key through this method rather than hand-rolling ContentHash calls,
// so the four inputs are always hashed in the same order.
func (l *L3WriterOutput) SemanticHash(windowFingerprint, enrichmentsFingerprint, retrievalFingerprint, writerPromptVersion string) string {
	return ContentHash("l3", windowFingerprint, enrichmentsFingerprint, retrievalFingerprint, writerPromptVersion)
}

func (l *L3WriterOutput) Get(semanticHash string) ([]byte, error) {
	return l.store.Get(semanticHash)
}

func (l *L3WriterOutput) Put(semanticHash string, value []byte) error {
	return l.store.Put(semanticHash, value, l.ttl)
}

func (l *L3WriterOutput) Invalidate() error {
	return l.store.Invalidate("*")
}

// Raw exposes the backing Tier for callers that need to pass it to a
// tier-agnostic operation such as Refresh.
func (l *L3WriterOutput) Raw() Tier { return l.store }
