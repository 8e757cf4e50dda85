package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag_gateway/vectorstore"
	"rag_gateway/vectorstore/memory"
)

// fakeEmbedder returns fixed vectors per text.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Get(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

// flakyStore injects errors into an otherwise working store.
type flakyStore struct {
	vectorstore.Store
	searchErr error
	getErr    error
	getNil    bool
	upsertErr error
	queryErr  error
	deleteErr map[string]error
}

func (s *flakyStore) Search(ctx context.Context, v []float32, k int) ([]vectorstore.Match, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.Store.Search(ctx, v, k)
}

func (s *flakyStore) Get(ctx context.Context, id string) (*vectorstore.Document, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.getNil {
		return nil, nil
	}
	return s.Store.Get(ctx, id)
}

func (s *flakyStore) UpsertWithTTL(ctx context.Context, doc vectorstore.Document, ttl time.Duration) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.Store.UpsertWithTTL(ctx, doc, ttl)
}

func (s *flakyStore) Query(ctx context.Context, f vectorstore.Filter) ([]string, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.Store.Query(ctx, f)
}

func (s *flakyStore) Delete(ctx context.Context, id string) error {
	if err := s.deleteErr[id]; err != nil {
		return err
	}
	return s.Store.Delete(ctx, id)
}

const (
	promptPromise   = "What is a Promise?"
	promptExplain   = "Explain what a Promise is"
	promptUnrelated = "How do I bake bread?"
)

func newTestEngine(t *testing.T) (*Engine, *fakeEmbedder, *flakyStore) {
	t.Helper()
	emb := &fakeEmbedder{vectors: map[string][]float32{
		promptPromise:   {1, 0},
		promptExplain:   {0.91, 0.41461},
		promptUnrelated: {0, 1},
	}}
	store := &flakyStore{Store: memory.New()}
	e := NewEngine(emb, store, nil)
	n := 0
	e.newID = func() string { n++; return fmt.Sprintf("id-%d", n) }
	e.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return e, emb, store
}

var defaultLookup = LookupOptions{SimilarityThreshold: DefaultSimilarityThreshold, CandidateCount: DefaultCandidateCount}

func TestPutStoresEntry(t *testing.T) {
	e, _, store := newTestEngine(t)
	ctx := context.Background()

	id, err := e.Put(ctx, promptPromise, "S1", "R1", 60)
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)

	doc, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vectorstore.Document{
		ID:         "id-1",
		Prompt:     promptPromise,
		Signature:  "S1",
		Response:   "R1",
		Embedding:  []float32{1, 0},
		CreatedAt:  1_700_000_000_000,
		TTLMinutes: 60,
	}, *doc)
}

func TestPutDefaultsTTL(t *testing.T) {
	e, _, store := newTestEngine(t)
	id, err := e.Put(context.Background(), promptPromise, "S1", "R1", 0)
	require.NoError(t, err)
	doc, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTLMinutes, doc.TTLMinutes)
}

func TestPutFailures(t *testing.T) {
	e, emb, store := newTestEngine(t)
	ctx := context.Background()

	emb.err = errors.New("quota")
	_, err := e.Put(ctx, promptPromise, "S1", "R1", 60)
	assert.ErrorIs(t, err, ErrCacheWrite)
	assert.ErrorIs(t, err, ErrEmbedding)

	emb.err = nil
	store.upsertErr = errors.New("disk full")
	_, err = e.Put(ctx, promptPromise, "S1", "R1", 60)
	assert.ErrorIs(t, err, ErrCacheWrite)
	assert.ErrorIs(t, err, ErrStore)
}

func TestLookupPromiseScenario(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	id, err := e.Put(ctx, promptPromise, "S1", "R1", 60)
	require.NoError(t, err)

	entry, err := e.Lookup(ctx, promptExplain, "S1", defaultLookup)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, "R1", entry.Response)

	entry, err = e.Lookup(ctx, promptExplain, "S2", defaultLookup)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestLookupEmptyStore(t *testing.T) {
	e, _, _ := newTestEngine(t)
	entry, err := e.Lookup(context.Background(), promptPromise, "S1", defaultLookup)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestLookupBelowThreshold(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.Put(ctx, promptPromise, "S1", "R1", 60)
	require.NoError(t, err)

	entry, err := e.Lookup(ctx, promptUnrelated, "S1", defaultLookup)
	require.NoError(t, err)
	assert.Nil(t, entry)

	// Strictly below: a threshold equal to the score still hits.
	entry, err = e.Lookup(ctx, promptPromise, "S1", LookupOptions{SimilarityThreshold: 1, CandidateCount: 1})
	require.NoError(t, err)
	assert.NotNil(t, entry)

	entry, err = e.Lookup(ctx, promptExplain, "S1", LookupOptions{SimilarityThreshold: 0.95, CandidateCount: 3})
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestLookupOnlyConsidersBestCandidate(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.Put(ctx, promptPromise, "S2", "R2", 60)
	require.NoError(t, err)
	_, err = e.Put(ctx, promptExplain, "S1", "R1", 60)
	require.NoError(t, err)

	// The best match has the wrong signature, so the runner-up is not consulted.
	entry, err := e.Lookup(ctx, promptPromise, "S1", defaultLookup)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestLookupExpiredDocumentIsMiss(t *testing.T) {
	e, _, store := newTestEngine(t)
	store.getErr = vectorstore.ErrNotFound
	require.NoError(t, store.Store.UpsertWithTTL(context.Background(), vectorstore.Document{
		ID: "x", Signature: "S1", Embedding: []float32{1, 0},
	}, time.Hour))

	entry, err := e.Lookup(context.Background(), promptPromise, "S1", defaultLookup)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestLookupMissingDocumentWithoutErrorIsMiss(t *testing.T) {
	e, _, store := newTestEngine(t)
	ctx := context.Background()
	_, err := e.Put(ctx, promptPromise, "S1", "R1", 60)
	require.NoError(t, err)

	store.getNil = true
	entry, err := e.Lookup(ctx, promptPromise, "S1", defaultLookup)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestLookupFailures(t *testing.T) {
	e, emb, store := newTestEngine(t)
	ctx := context.Background()
	_, err := e.Put(ctx, promptPromise, "S1", "R1", 60)
	require.NoError(t, err)

	emb.err = errors.New("unreachable")
	_, err = e.Lookup(ctx, promptPromise, "S1", defaultLookup)
	assert.ErrorIs(t, err, ErrEmbedding)
	emb.err = nil

	store.searchErr = errors.New("timeout")
	_, err = e.Lookup(ctx, promptPromise, "S1", defaultLookup)
	assert.ErrorIs(t, err, ErrStore)
	store.searchErr = nil

	store.getErr = vectorstore.ErrMalformedDocument
	_, err = e.Lookup(ctx, promptPromise, "S1", defaultLookup)
	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, vectorstore.ErrMalformedDocument)
}

func TestClearBySignature(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := e.Put(ctx, promptPromise, "S1", "R1", 60)
		require.NoError(t, err)
	}
	_, err := e.Put(ctx, promptUnrelated, "S2", "R2", 60)
	require.NoError(t, err)

	n, err := e.Clear(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	entry, err := e.Lookup(ctx, promptPromise, "S1", defaultLookup)
	require.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = e.Lookup(ctx, promptUnrelated, "S2", defaultLookup)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "R2", entry.Response)
}

func TestClearAll(t *testing.T) {
	e, _, store := newTestEngine(t)
	ctx := context.Background()
	_, _ = e.Put(ctx, promptPromise, "S1", "R1", 60)
	_, _ = e.Put(ctx, promptUnrelated, "S2", "R2", 60)

	n, err := e.Clear(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, store.Store.(*memory.Store).Len())
}

func TestClearContinuesPastFailures(t *testing.T) {
	e, _, store := newTestEngine(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := e.Put(ctx, promptPromise, "S1", "R1", 60)
		require.NoError(t, err)
	}
	store.deleteErr = map[string]error{"id-2": errors.New("locked")}

	n, err := e.Clear(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids, err := store.Query(ctx, vectorstore.Filter{Signature: "S1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id-2"}, ids)
}

func TestClearQueryFailure(t *testing.T) {
	e, _, store := newTestEngine(t)
	store.queryErr = errors.New("down")
	_, err := e.Clear(context.Background(), "S1")
	assert.ErrorIs(t, err, ErrStore)
}
