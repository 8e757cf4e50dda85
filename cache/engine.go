package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rag_gateway/embedding"
	"rag_gateway/vectorstore"
)

const clearConcurrency = 8

// Engine implements Service on top of an embedding provider and a vector store.
// It holds no mutable state; concurrent calls only share the collaborators.
type Engine struct {
	embedder embedding.Service
	store    vectorstore.Store
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewEngine(embedder embedding.Service, store vectorstore.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Lookup implements Service. Only the best-scored candidate is considered.
func (e *Engine) Lookup(ctx context.Context, prompt, signature string, opts LookupOptions) (*Entry, error) {
	if opts.CandidateCount <= 0 {
		opts.CandidateCount = DefaultCandidateCount
	}

	vec, err := e.embedder.Get(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	matches, err := e.store.Search(ctx, vec, opts.CandidateCount)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrStore, err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.Score > best.Score {
			best = m
		}
	}
	if float64(best.Score) < opts.SimilarityThreshold {
		e.logger.Debug("best candidate below threshold",
			zap.Float32("score", best.Score), zap.Float64("threshold", opts.SimilarityThreshold))
		return nil, nil
	}

	doc, err := e.store.Get(ctx, best.ID)
	if errors.Is(err, vectorstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrStore, best.ID, err)
	}
	if doc == nil {
		e.logger.Warn("store returned no document", zap.String("id", best.ID))
		return nil, nil
	}
	if doc.Signature != signature {
		e.logger.Debug("signature mismatch", zap.String("id", doc.ID))
		return nil, nil
	}

	e.logger.Info("cache hit", zap.String("id", doc.ID), zap.Float32("score", best.Score))
	return entryFromDocument(doc), nil
}

// Put implements Service.
func (e *Engine) Put(ctx context.Context, prompt, signature, response string, ttlMinutes int) (string, error) {
	if ttlMinutes <= 0 {
		ttlMinutes = DefaultTTLMinutes
	}
	id := e.newID()

	vec, err := e.embedder.Get(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %w", ErrCacheWrite, ErrEmbedding, err)
	}

	doc := vectorstore.Document{
		ID:         id,
		Prompt:     prompt,
		Signature:  signature,
		Response:   response,
		Embedding:  vec,
		CreatedAt:  e.now().UnixMilli(),
		TTLMinutes: ttlMinutes,
	}
	if err := e.store.UpsertWithTTL(ctx, doc, time.Duration(ttlMinutes)*time.Minute); err != nil {
		return "", fmt.Errorf("%w: %w: %w", ErrCacheWrite, ErrStore, err)
	}
	return id, nil
}

// Clear implements Service. Each delete is independent; failures are logged
// and the number actually removed is returned.
func (e *Engine) Clear(ctx context.Context, signature string) (int, error) {
	ids, err := e.store.Query(ctx, vectorstore.Filter{Signature: signature})
	if err != nil {
		return 0, fmt.Errorf("%w: query: %w", ErrStore, err)
	}

	var deleted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(clearConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := e.store.Delete(gctx, id); err != nil {
				e.logger.Warn("fail to delete cache entry", zap.String("id", id), zap.Error(err))
				return nil
			}
			deleted.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	n := int(deleted.Load())
	e.logger.Info("cleared cache", zap.String("signature", signature), zap.Int("deleted", n), zap.Int("found", len(ids)))
	return n, nil
}

func entryFromDocument(doc *vectorstore.Document) *Entry {
	return &Entry{
		ID:         doc.ID,
		Prompt:     doc.Prompt,
		Signature:  doc.Signature,
		Response:   doc.Response,
		Embedding:  doc.Embedding,
		CreatedAt:  doc.CreatedAt,
		TTLMinutes: doc.TTLMinutes,
	}
}
