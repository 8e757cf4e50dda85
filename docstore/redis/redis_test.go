package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag_gateway/docstore"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, New(client, "test:")
}

func TestPutGetDelete(t *testing.T) {
	mr, s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", []byte(`{"a":1}`), time.Minute))
	assert.True(t, mr.Exists("test:doc:k1"))

	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	require.NoError(t, s.Delete(ctx, "k1"))
	_, err = s.Get(ctx, "k1")
	assert.True(t, errors.Is(err, docstore.ErrNotFound))
}

func TestExpiry(t *testing.T) {
	mr, s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", []byte("v"), 2*time.Minute))
	assert.Equal(t, 2*time.Minute, mr.TTL("test:doc:k1"))

	mr.FastForward(3 * time.Minute)

	_, err := s.Get(ctx, "k1")
	assert.True(t, errors.Is(err, docstore.ErrNotFound))
}

func TestNoExpiry(t *testing.T) {
	mr, s := setupStore(t)
	require.NoError(t, s.Put(context.Background(), "k1", []byte("v"), 0))
	assert.Zero(t, mr.TTL("test:doc:k1"))
}

func TestUnavailableServer(t *testing.T) {
	mr, s := setupStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "k1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, docstore.ErrNotFound))
}
