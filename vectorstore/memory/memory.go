// Package memory is an in-process vectorstore.Store using brute-force cosine
// similarity. It backs tests and single-process development setups.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"rag_gateway/vectorstore"
)

type item struct {
	doc       vectorstore.Document
	expiresAt time.Time
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now, mainly for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		items: make(map[string]item),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertWithTTL stores a copy of doc. ttl <= 0 means the document never expires.
func (s *Store) UpsertWithTTL(ctx context.Context, doc vectorstore.Document, ttl time.Duration) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	it := item{doc: cloneDocument(doc)}
	if ttl > 0 {
		it.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[doc.ID] = it
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	now := s.now()

	s.mu.RLock()
	matches := make([]vectorstore.Match, 0, len(s.items))
	for id, it := range s.items {
		if it.expired(now) {
			continue
		}
		matches = append(matches, vectorstore.Match{
			ID:    id,
			Score: CosineSimilarity(vector, it.doc.Embedding),
		})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *Store) Get(ctx context.Context, id string) (*vectorstore.Document, error) {
	s.mu.RLock()
	it, ok := s.items[id]
	s.mu.RUnlock()

	if !ok || it.expired(s.now()) {
		return nil, vectorstore.ErrNotFound
	}
	doc := cloneDocument(it.doc)
	return &doc, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *Store) Query(ctx context.Context, filter vectorstore.Filter) ([]string, error) {
	now := s.now()

	s.mu.RLock()
	ids := make([]string, 0, len(s.items))
	for id, it := range s.items {
		if it.expired(now) || !filter.Matches(&it.doc) {
			continue
		}
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids, nil
}

// Len counts stored documents, including expired ones not yet deleted.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (it item) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

func cloneDocument(doc vectorstore.Document) vectorstore.Document {
	doc.Embedding = append([]float32(nil), doc.Embedding...)
	return doc
}

// CosineSimilarity returns 0 for empty or mismatched vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
