// Package knowledge indexes reference documents and retrieves the passages
// most relevant to a question, for use as grounding context in prompts.
package knowledge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"rag_gateway/embedding"
)

const DefaultTopK = 4

// Passage is one indexed piece of a source document.
type Passage struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

type Hit struct {
	Passage
	Score float32
}

// Store holds passage vectors. Upsert with an existing id replaces it.
type Store interface {
	Upsert(ctx context.Context, p Passage, vector []float32) error
	// Search returns up to k hits ordered by descending score.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
}

type Retriever struct {
	embedder embedding.Service
	store    Store
	topK     int
	logger   *zap.Logger
}

func NewRetriever(embedder embedding.Service, store Store, topK int, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, store: store, topK: topK, logger: logger}
}

// Retrieve returns the passages closest to query.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Hit, error) {
	vec, err := r.embedder.Get(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fail to embed query: %w", err)
	}
	hits, err := r.store.Search(ctx, vec, r.topK)
	if err != nil {
		return nil, fmt.Errorf("fail to search passages: %w", err)
	}
	for i, h := range hits {
		r.logger.Debug("retrieved passage",
			zap.Int("rank", i+1),
			zap.String("id", h.ID),
			zap.String("source", h.Source),
			zap.Float32("score", h.Score))
	}
	return hits, nil
}
