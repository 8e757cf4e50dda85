package knowledge

import (
	"context"
	"sort"
	"sync"

	"rag_gateway/vectorstore/memory"
)

// MemoryStore keeps passages in process. It backs tests and the memory
// cache backend.
type MemoryStore struct {
	mu       sync.RWMutex
	passages map[string]Passage
	vectors  map[string][]float32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{passages: map[string]Passage{}, vectors: map[string][]float32{}}
}

func (s *MemoryStore) Upsert(_ context.Context, p Passage, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passages[p.ID] = p
	s.vectors[p.ID] = append([]float32(nil), vector...)
	return nil
}

func (s *MemoryStore) Search(_ context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	hits := make([]Hit, 0, len(s.passages))
	for id, p := range s.passages {
		hits = append(hits, Hit{Passage: p, Score: memory.CosineSimilarity(vector, s.vectors[id])})
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passages)
}
