// Package qdrant backs rag.Store with github.com/qdrant/go-client,
// adapting the point-upsert/search/payload-marshalling pattern from the
// teacher's ai/providers/vectorstores/qdrant converter to the pipeline's
// simpler (docID, vector, payload) contract.
package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/rivergate/chronicle/rag"
)

// payloadDocTypeKey mirrors the teacher's convention of a single
// well-known payload key for the stored doc_type, used to avoid schema
// drift across point upserts.
const payloadDocTypeKey = "doc_type"

// Store implements rag.Store and rag.Rebuildable over a Qdrant collection.
type Store struct {
	client         *qdrant.Client
	collectionName string
	dim            int
}

// Config bundles Store construction dependencies.
type Config struct {
	Client           *qdrant.Client
	CollectionName   string
	InitializeSchema bool
	Dimensionality   int
}

func (c *Config) validate() error {
	if c.Client == nil {
		return fmt.Errorf("qdrant: client is required")
	}
	if c.CollectionName == "" {
		return fmt.Errorf("qdrant: collection name is required")
	}
	if c.Dimensionality <= 0 {
		return fmt.Errorf("qdrant: dimensionality must be > 0")
	}
	return nil
}

var _ rag.Store = (*Store)(nil)
var _ rag.Rebuildable = (*Store)(nil)

// New constructs a Store, optionally creating the collection if
// InitializeSchema is set and it does not already exist.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Store{client: cfg.Client, collectionName: cfg.CollectionName, dim: cfg.Dimensionality}

	if cfg.InitializeSchema {
		exists, err := s.client.CollectionExists(ctx, cfg.CollectionName)
		if err != nil {
			return nil, fmt.Errorf("qdrant: checking collection: %w", err)
		}
		if !exists {
			if err := s.createCollection(ctx, cfg.Dimensionality); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *Store) createCollection(ctx context.Context, dim int) error {
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func pointID(docID string) *qdrant.PointId {
	return qdrant.NewIDNum(hashToUint64(docID))
}

// hashToUint64 derives a deterministic numeric point id from a document
// id, since Qdrant point ids must be either a UUID or an unsigned integer
// and document ids are arbitrary strings (slugs, content hashes).
func hashToUint64(s string) uint64 {
	var h uint64 = 14695981039346656037 // FNV-1a offset basis
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func (s *Store) Index(ctx context.Context, docID string, vector []float32, payload map[string]any) error {
	qPayload := qdrant.NewValueMap(map[string]any{
		"doc_id": docID,
	})
	for k, v := range payload {
		qPayload.Fields[k] = qdrant.NewValue(v)
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionName,
		Points: []*qdrant.PointStruct{
			{
				Id:      pointID(docID),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qPayload.Fields,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %q: %w", docID, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]rag.Hit, error) {
	limit := uint64(topK)
	result, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	hits := make([]rag.Hit, 0, len(result))
	for _, point := range result {
		docID := point.Id.String()
		if v, ok := point.Payload["doc_id"]; ok {
			docID = v.GetStringValue()
		}
		hits = append(hits, rag.Hit{DocID: docID, Score: float64(point.Score)})
	}
	return hits, nil
}

func (s *Store) Dimensionality(ctx context.Context) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collectionName)
	if err != nil {
		return 0, fmt.Errorf("qdrant: collection info: %w", err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return s.dim, nil
	}
	return int(params.GetSize()), nil
}

// Rebuild drops and recreates the collection at the given dimensionality,
// implementing rag.Rebuildable.
func (s *Store) Rebuild(ctx context.Context, dim int) error {
	if err := s.client.DeleteCollection(ctx, s.collectionName); err != nil {
		return fmt.Errorf("qdrant: rebuild: delete: %w", err)
	}
	s.dim = dim
	return s.createCollection(ctx, dim)
}
