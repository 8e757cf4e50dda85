// Package qdrant stores knowledge passages in a Qdrant collection. Unlike the
// cache index, passages do not expire, so the whole passage lives in the
// point payload.
package qdrant

import (
	"context"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"rag_gateway/knowledge"
	vectorqdrant "rag_gateway/vectorstore/qdrant"
)

const (
	fieldSource  = "source"
	fieldContent = "content"
)

type Config struct {
	Collection string
	Dimensions int
}

// Store implements knowledge.Store.
type Store struct {
	client     vectorqdrant.Client
	collection string
	dimensions int
	logger     *zap.Logger
}

// New ensures the collection and its source index exist.
func New(ctx context.Context, client vectorqdrant.Client, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: empty collection name")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("qdrant: invalid dimensions %d", cfg.Dimensions)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{client: client, collection: cfg.Collection, dimensions: cfg.Dimensions, logger: logger}

	exists, err := client.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("fail to check if collection %s exists: %w", s.collection, err)
	}
	if exists {
		return s, nil
	}
	err = client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("fail to create collection %s: %w", s.collection, err)
	}
	_, err = client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      fieldSource,
		FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
	})
	if err != nil {
		return nil, fmt.Errorf("fail to index %s: %w", fieldSource, err)
	}
	logger.Info("created qdrant collection", zap.String("collection", s.collection))
	return s, nil
}

func (s *Store) Upsert(ctx context.Context, p knowledge.Passage, vector []float32) error {
	if len(vector) != s.dimensions {
		return fmt.Errorf("qdrant: passage %s has %d dimensions, want %d", p.ID, len(vector), s.dimensions)
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(p.ID),
				Vectors: qdrant.NewVectorsDense(vector),
				Payload: qdrant.NewValueMap(map[string]any{
					fieldSource:  p.Source,
					fieldContent: p.Content,
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("fail to store passage %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]knowledge.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("fail to search passages: %w", err)
	}
	hits := make([]knowledge.Hit, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		hits = append(hits, knowledge.Hit{
			Passage: knowledge.Passage{
				ID:      p.GetId().GetUuid(),
				Source:  payload[fieldSource].GetStringValue(),
				Content: payload[fieldContent].GetStringValue(),
			},
			Score: p.GetScore(),
		})
	}
	return hits, nil
}
