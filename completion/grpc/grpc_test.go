package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"rag_gateway/completion"
)

type fakeCompletion struct {
	got    *completion.CompletionRequest
	chunks []*completion.CompletionChunk
	err    error
}

func (f *fakeCompletion) GetStream(_ context.Context, req *completion.CompletionRequest) (<-chan *completion.CompletionChunk, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan *completion.CompletionChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func startServer(t *testing.T, svc completion.Service) *Client {
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

func TestGetStreamRoundTrip(t *testing.T) {
	fake := &fakeCompletion{chunks: []*completion.CompletionChunk{
		{Content: "Hel"},
		{Content: "lo"},
		{Done: true, TokenUsage: 7},
	}}
	req := &completion.CompletionRequest{
		Model:        "gpt-4o-mini",
		Question:     "hi",
		SystemPrompt: "sys",
		History:      []completion.Message{{Role: completion.RoleAssistant, Content: "earlier"}},
		Temperature:  0.7,
		MaxTokens:    128,
	}

	ch, err := startServer(t, fake).GetStream(context.Background(), req)
	require.NoError(t, err)
	text, err := completion.Accumulate(context.Background(), ch, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, req, fake.got)
}

func TestGetStreamServiceError(t *testing.T) {
	fake := &fakeCompletion{err: errors.New("upstream 500")}

	ch, err := startServer(t, fake).GetStream(context.Background(), &completion.CompletionRequest{Question: "q"})
	require.NoError(t, err)
	_, err = completion.Accumulate(context.Background(), ch, nil)
	assert.ErrorContains(t, err, "upstream 500")
}

func TestGetStreamChunkError(t *testing.T) {
	fake := &fakeCompletion{chunks: []*completion.CompletionChunk{
		{Content: "par"},
		{Error: errors.New("read reset"), Done: true},
	}}

	ch, err := startServer(t, fake).GetStream(context.Background(), &completion.CompletionRequest{Question: "q"})
	require.NoError(t, err)
	text, err := completion.Accumulate(context.Background(), ch, nil)
	assert.ErrorContains(t, err, "read reset")
	assert.Equal(t, "par", text)
}
