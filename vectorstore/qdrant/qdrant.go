package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"rag_gateway/docstore"
	"rag_gateway/vectorstore"
)

const scrollPageSize = 256

// Client is the subset of *qdrant.Client used by Store.
type Client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
}

type Config struct {
	Collection string
	Dimensions int
}

// Store implements vectorstore.Store with Qdrant holding the vectors and a
// docstore.Store holding the documents. Qdrant has no native TTL, so the doc
// store owns expiry and each point carries an expires_at payload that search
// filters on. Prune removes points whose documents have expired.
type Store struct {
	client     Client
	docs       docstore.Store
	collection string
	dimensions int
	logger     *zap.Logger
	now        func() time.Time
}

// New ensures the collection and its payload indexes exist.
func New(ctx context.Context, client Client, cfg Config, docs docstore.Store, logger *zap.Logger) (*Store, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: empty collection name")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("qdrant: invalid dimensions %d", cfg.Dimensions)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		client:     client,
		docs:       docs,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		logger:     logger,
		now:        time.Now,
	}
	if err := s.createCollection(ctx); err != nil {
		return nil, fmt.Errorf("fail to create qdrant collection: %w", err)
	}
	return s, nil
}

func (s *Store) createCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("fail to check if collection %s exists: %w", s.collection, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("fail to create collection: %w", err)
	}

	indexes := []struct {
		field string
		typ   qdrant.FieldType
	}{
		{fieldSignature, qdrant.FieldType_FieldTypeKeyword},
		{fieldExpiresAt, qdrant.FieldType_FieldTypeInteger},
	}
	for _, idx := range indexes {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      idx.field,
			FieldType:      qdrant.PtrOf(idx.typ),
		})
		if err != nil {
			return fmt.Errorf("fail to index %s: %w", idx.field, err)
		}
	}
	s.logger.Info("created qdrant collection", zap.String("collection", s.collection))
	return nil
}

func (s *Store) UpsertWithTTL(ctx context.Context, doc vectorstore.Document, ttl time.Duration) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if _, err := uuid.Parse(doc.ID); err != nil {
		return fmt.Errorf("%w: id %q is not a uuid", vectorstore.ErrMalformedDocument, doc.ID)
	}
	if len(doc.Embedding) != s.dimensions {
		return fmt.Errorf("%w: embedding has %d dimensions, want %d",
			vectorstore.ErrMalformedDocument, len(doc.Embedding), s.dimensions)
	}
	if ttl <= 0 {
		return fmt.Errorf("qdrant: ttl must be positive, got %s", ttl)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("fail to marshal document: %w", err)
	}
	if err := s.docs.Put(ctx, doc.ID, data, ttl); err != nil {
		return fmt.Errorf("fail to store document: %w", err)
	}

	expiresAt := s.now().Add(ttl).UnixMilli()
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(doc.ID),
				Vectors: qdrant.NewVectorsDense(doc.Embedding),
				Payload: pointPayload(doc, expiresAt),
			},
		},
	})
	if err != nil {
		if derr := s.docs.Delete(context.WithoutCancel(ctx), doc.ID); derr != nil {
			s.logger.Warn("fail to roll back document", zap.String("id", doc.ID), zap.Error(derr))
		}
		return fmt.Errorf("fail to store qdrant point: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vector),
		Filter:         liveFilter(s.now().UnixMilli()),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("fail to search qdrant: %w", err)
	}
	matches := make([]vectorstore.Match, 0, len(points))
	for _, p := range points {
		matches = append(matches, vectorstore.Match{ID: idString(p.GetId()), Score: p.GetScore()})
	}
	return matches, nil
}

func (s *Store) Get(ctx context.Context, id string) (*vectorstore.Document, error) {
	data, err := s.docs.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, vectorstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fail to load document %s: %w", id, err)
	}
	var doc vectorstore.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", vectorstore.ErrMalformedDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes both the point and the document. Missing items are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, perr := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
	})
	if perr != nil {
		perr = fmt.Errorf("fail to delete qdrant point %s: %w", id, perr)
	}
	return errors.Join(perr, s.docs.Delete(ctx, id))
}

func (s *Store) Query(ctx context.Context, filter vectorstore.Filter) ([]string, error) {
	var (
		ids    []string
		offset *qdrant.PointId
	)
	qf := queryFilter(filter, s.now().UnixMilli())
	for {
		// One extra point tells us where the next page starts.
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         qf,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize + 1)),
			WithPayload:    qdrant.NewWithPayload(false),
		})
		if err != nil {
			return nil, fmt.Errorf("fail to scroll qdrant: %w", err)
		}
		if len(points) <= scrollPageSize {
			for _, p := range points {
				ids = append(ids, idString(p.GetId()))
			}
			return ids, nil
		}
		for _, p := range points[:scrollPageSize] {
			ids = append(ids, idString(p.GetId()))
		}
		offset = points[scrollPageSize].GetId()
	}
}

// Prune deletes points whose expires_at has passed. Their documents are
// already gone from the doc store.
func (s *Store) Prune(ctx context.Context) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(expiredFilter(s.now().UnixMilli())),
	})
	if err != nil {
		return fmt.Errorf("fail to prune qdrant: %w", err)
	}
	return nil
}
