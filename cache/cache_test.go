package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"rag_gateway/cache"
	"rag_gateway/cache/mocks"
	embeddingmocks "rag_gateway/embedding/mocks"
	"rag_gateway/vectorstore/memory"
)

func counter(t *testing.T, m *cache.Metrics, name, outcome string) float64 {
	t.Helper()
	return testutil.ToFloat64(m.Counter(name, outcome))
}

type generatorSpy struct {
	calls    int
	response string
	err      error
}

func (g *generatorSpy) generate(context.Context) (string, error) {
	g.calls++
	return g.response, g.err
}

func TestLookupOrGenerateHit(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Lookup(gomock.Any(), "q", "S1", cache.LookupOptions{SimilarityThreshold: 0.85, CandidateCount: 3}).
		Return(&cache.Entry{ID: "id-1", Response: "R1"}, nil)

	metrics := cache.NewMetrics(prometheus.NewRegistry())
	gen := &generatorSpy{}
	res, err := cache.New(svc, nil, metrics).LookupOrGenerate(context.Background(), "q", "S1", gen.generate, cache.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, cache.Result{Source: cache.SourceHit, ID: "id-1", Response: "R1"}, res)
	assert.Zero(t, gen.calls)
	assert.Equal(t, 1.0, counter(t, metrics, "lookups", "hit"))
}

func TestLookupOrGenerateMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	gomock.InOrder(
		svc.EXPECT().Lookup(gomock.Any(), "q", "S1", gomock.Any()).Return(nil, nil),
		svc.EXPECT().Put(gomock.Any(), "q", "S1", "fresh", 1440).Return("id-9", nil),
	)

	metrics := cache.NewMetrics(prometheus.NewRegistry())
	gen := &generatorSpy{response: "fresh"}
	res, err := cache.New(svc, nil, metrics).LookupOrGenerate(context.Background(), "q", "S1", gen.generate, cache.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, cache.Result{Source: cache.SourceMiss, ID: "id-9", Response: "fresh"}, res)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 1.0, counter(t, metrics, "lookups", "miss"))
	assert.Equal(t, 1.0, counter(t, metrics, "writes", "ok"))
	assert.Equal(t, 1.0, counter(t, metrics, "generations", "ok"))
}

func TestLookupErrorIsTreatedAsMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Lookup(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, cache.ErrEmbedding)
	svc.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("id-1", nil)

	metrics := cache.NewMetrics(prometheus.NewRegistry())
	gen := &generatorSpy{response: "fresh"}
	res, err := cache.New(svc, nil, metrics).LookupOrGenerate(context.Background(), "q", "S1", gen.generate, cache.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, cache.SourceMiss, res.Source)
	assert.Equal(t, "fresh", res.Response)
	assert.True(t, res.Degraded)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 1.0, counter(t, metrics, "lookups", "error"))
}

func TestGenerationErrorIsReturnedUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Lookup(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	upstream := errors.New("upstream 503")
	metrics := cache.NewMetrics(prometheus.NewRegistry())
	gen := &generatorSpy{err: upstream}
	_, err := cache.New(svc, nil, metrics).LookupOrGenerate(context.Background(), "q", "S1", gen.generate, cache.DefaultOptions())
	assert.Same(t, upstream, err)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 1.0, counter(t, metrics, "generations", "error"))
}

func TestWriteFailureStillDeliversResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Lookup(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	svc.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("", cache.ErrCacheWrite)

	metrics := cache.NewMetrics(prometheus.NewRegistry())
	gen := &generatorSpy{response: "fresh"}
	res, err := cache.New(svc, nil, metrics).LookupOrGenerate(context.Background(), "q", "S1", gen.generate, cache.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, cache.Result{Source: cache.SourceMiss, ID: cache.UncachedID, Response: "fresh", Degraded: true}, res)
	assert.Equal(t, 1.0, counter(t, metrics, "writes", "error"))
}

func TestWriteSurvivesCancelledRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Lookup(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	svc.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _, _, _ string, _ int) (string, error) {
			assert.NoError(t, ctx.Err())
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			return "id-1", nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	gen := func(context.Context) (string, error) {
		cancel()
		return "fresh", nil
	}
	opts := cache.DefaultOptions()
	opts.WriteTimeout = time.Second
	res, err := cache.New(svc, nil, nil).LookupOrGenerate(ctx, "q", "S1", gen, opts)
	require.NoError(t, err)
	assert.Equal(t, "id-1", res.ID)
}

func TestZeroOptionsFallBackToDefaults(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Lookup(gomock.Any(), gomock.Any(), gomock.Any(), cache.LookupOptions{SimilarityThreshold: 0.9, CandidateCount: 3}).Return(nil, nil)
	svc.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), cache.DefaultTTLMinutes).Return("id-1", nil)

	gen := &generatorSpy{response: "fresh"}
	_, err := cache.New(svc, nil, nil).LookupOrGenerate(context.Background(), "q", "S1", gen.generate, cache.Options{SimilarityThreshold: 0.9})
	require.NoError(t, err)
}

func TestEndToEndWithEngine(t *testing.T) {
	ctrl := gomock.NewController(t)
	emb := embeddingmocks.NewMockService(ctrl)
	emb.EXPECT().Get(gomock.Any(), "What is a Promise?").Return([]float32{1, 0}, nil).AnyTimes()
	emb.EXPECT().Get(gomock.Any(), "Explain what a Promise is").Return([]float32{0.91, 0.41461}, nil).AnyTimes()

	c := cache.New(cache.NewEngine(emb, memory.New(), nil), nil, nil)
	ctx := context.Background()
	opts := cache.DefaultOptions()

	first := &generatorSpy{response: "R1"}
	res, err := c.LookupOrGenerate(ctx, "What is a Promise?", "S1", first.generate, opts)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceMiss, res.Source)
	assert.Equal(t, 1, first.calls)

	second := &generatorSpy{response: "unused"}
	res, err = c.LookupOrGenerate(ctx, "Explain what a Promise is", "S1", second.generate, opts)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceHit, res.Source)
	assert.Equal(t, "R1", res.Response)
	assert.Zero(t, second.calls)

	third := &generatorSpy{response: "R2"}
	res, err = c.LookupOrGenerate(ctx, "Explain what a Promise is", "S2", third.generate, opts)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceMiss, res.Source)
	assert.Equal(t, "R2", res.Response)
	assert.Equal(t, 1, third.calls)

	n, err := c.Clear(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fourth := &generatorSpy{response: "R1b"}
	res, err = c.LookupOrGenerate(ctx, "What is a Promise?", "S1", fourth.generate, opts)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceMiss, res.Source)
	assert.Equal(t, 1, fourth.calls)
}
