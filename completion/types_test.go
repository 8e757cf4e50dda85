package completion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(chunks ...*CompletionChunk) <-chan *CompletionChunk {
	ch := make(chan *CompletionChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func TestMessages(t *testing.T) {
	req := &CompletionRequest{
		Question:     "and then?",
		SystemPrompt: "be brief",
		History:      []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}},
	}
	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "and then?"},
	}, req.Messages())

	assert.Equal(t, []Message{{Role: RoleUser, Content: "q"}}, (&CompletionRequest{Question: "q"}).Messages())
}

func TestAccumulate(t *testing.T) {
	var seen []string
	text, err := Accumulate(context.Background(), feed(
		&CompletionChunk{Content: "Hel"},
		&CompletionChunk{Content: "lo"},
		&CompletionChunk{Done: true, TokenUsage: 12},
		&CompletionChunk{Content: "ignored"},
	), func(s string) error {
		seen = append(seen, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "lo"}, seen)
}

func TestAccumulateStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	text, err := Accumulate(context.Background(), feed(
		&CompletionChunk{Content: "part"},
		&CompletionChunk{Error: boom, Done: true},
	), nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "part", text)

	writeErr := errors.New("client gone")
	_, err = Accumulate(context.Background(), feed(&CompletionChunk{Content: "x"}), func(string) error { return writeErr })
	assert.ErrorIs(t, err, writeErr)
}

func TestAccumulateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Accumulate(ctx, make(chan *CompletionChunk), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
