package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := New(client, "test:", ttl)
	s.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return mr, s
}

func TestAddAndHistory(t *testing.T) {
	_, s := setupStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.AddMessage(ctx, "s1", RoleUser, "What is a Promise?"))
	require.NoError(t, s.AddMessage(ctx, "s1", RoleAssistant, "A future value."))
	require.NoError(t, s.AddMessage(ctx, "s2", RoleUser, "other session"))

	msgs, err := s.History(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{Role: RoleUser, Content: "What is a Promise?", Timestamp: s.now()}, msgs[0])
	assert.Equal(t, RoleAssistant, msgs[1].Role)
}

func TestHistoryLimitKeepsNewest(t *testing.T) {
	_, s := setupStore(t, 0)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		require.NoError(t, s.AddMessage(ctx, "s1", RoleUser, fmt.Sprintf("m%d", i)))
	}

	msgs, err := s.History(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m12", msgs[0].Content)
	assert.Equal(t, "m14", msgs[2].Content)

	msgs, err = s.History(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, DefaultHistoryLimit)
}

func TestExpiryRefreshed(t *testing.T) {
	mr, s := setupStore(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, s.AddMessage(ctx, "s1", RoleUser, "hi"))
	assert.Equal(t, time.Hour, mr.TTL("test:conversation:s1"))

	mr.FastForward(2 * time.Hour)
	msgs, err := s.History(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestClear(t *testing.T) {
	_, s := setupStore(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, s.AddMessage(ctx, "s1", RoleUser, "hi"))
	require.NoError(t, s.Clear(ctx, "s1"))

	msgs, err := s.History(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestEmptySession(t *testing.T) {
	_, s := setupStore(t, time.Hour)
	ctx := context.Background()
	assert.ErrorIs(t, s.AddMessage(ctx, "", RoleUser, "x"), ErrEmptySession)
	_, err := s.History(ctx, "", 1)
	assert.ErrorIs(t, err, ErrEmptySession)
	assert.ErrorIs(t, s.Clear(ctx, ""), ErrEmptySession)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "No previous conversation history.", Format(nil))
	assert.Equal(t, "User: hi\nAssistant: hello", Format([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}))
}
