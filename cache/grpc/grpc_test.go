package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"rag_gateway/cache"
	"rag_gateway/cache/mocks"
	"rag_gateway/rpc"
)

func startServer(t *testing.T, svc cache.Service) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	NewServer(svc).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLookupHit(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	want := &cache.Entry{
		ID:         "6f1c7c3e-6c1b-4d8a-9a57-3c0e1d2f4b5a",
		Prompt:     "What is a Promise?",
		Signature:  "S1",
		Response:   "R1",
		Embedding:  []float32{1, 0.5},
		CreatedAt:  1_700_000_000_123,
		TTLMinutes: 1440,
	}
	svc.EXPECT().Lookup(gomock.Any(), "Explain what a Promise is", "S1",
		cache.LookupOptions{SimilarityThreshold: 0.85, CandidateCount: 3}).Return(want, nil)

	got, err := startServer(t, svc).Lookup(context.Background(), "Explain what a Promise is", "S1",
		cache.LookupOptions{SimilarityThreshold: 0.85, CandidateCount: 3})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLookupMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Lookup(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	got, err := startServer(t, svc).Lookup(context.Background(), "q", "S1", cache.LookupOptions{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLookupRemoteError(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Lookup(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, cache.ErrEmbedding)

	_, err := startServer(t, svc).Lookup(context.Background(), "q", "S1", cache.LookupOptions{})
	require.Error(t, err)
	assert.True(t, rpc.IsRemote(err))
}

func TestPut(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Put(gomock.Any(), "q", "S1", "R1", 60).Return("id-1", nil)
	svc.EXPECT().Put(gomock.Any(), "q", "S1", "R2", 60).Return("", errors.New("store down"))

	c := startServer(t, svc)
	id, err := c.Put(context.Background(), "q", "S1", "R1", 60)
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)

	_, err = c.Put(context.Background(), "q", "S1", "R2", 60)
	assert.ErrorIs(t, err, cache.ErrCacheWrite)
}

func TestClear(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Clear(gomock.Any(), "S1").Return(4, nil)

	n, err := startServer(t, svc).Clear(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestClientDrivesCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Lookup(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	svc.EXPECT().Put(gomock.Any(), "q", "S1", "fresh", cache.DefaultTTLMinutes).Return("id-1", nil)

	c := cache.New(startServer(t, svc), nil, nil)
	res, err := c.LookupOrGenerate(context.Background(), "q", "S1", func(context.Context) (string, error) {
		return "fresh", nil
	}, cache.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, cache.Result{Source: cache.SourceMiss, ID: "id-1", Response: "fresh"}, res)
}
