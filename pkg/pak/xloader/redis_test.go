package xloader

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLoader(t *testing.T, opts ...RedisOption) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr:         mr.Addr(),
		DialTimeout:  100 * time.Millisecond,
		ReadTimeout:  100 * time.Millisecond,
		WriteTimeout: 100 * time.Millisecond,
		PoolSize:     2,
		MaxRetries:   1,
	})

	loader, err := NewRedis(client, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	return loader, mr
}

func TestNewRedis_WithNilClient_ReturnsError(t *testing.T) {
	_, err := NewRedis(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestRedis_Load_WithExistingKey_ReturnsPayload(t *testing.T) {
	loader, mr := newTestRedisLoader(t)
	mr.Set("pak:level01", "level-bytes")

	p, err := loader.Load(context.Background(), "level01")
	require.NoError(t, err)
	assert.Equal(t, []byte("level-bytes"), p.Data)
}

func TestRedis_Load_WithMissingKey_ReturnsNotFound(t *testing.T) {
	loader, _ := newTestRedisLoader(t)

	_, err := loader.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedis_Load_WithEmptyKey_ReturnsError(t *testing.T) {
	loader, _ := newTestRedisLoader(t)

	_, err := loader.Load(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestRedis_Load_WithCustomPrefix_UsesPrefix(t *testing.T) {
	loader, mr := newTestRedisLoader(t, WithKeyPrefix("content/"))
	mr.Set("content/audio", "wav")

	p, err := loader.Load(context.Background(), "audio")
	require.NoError(t, err)
	assert.Equal(t, []byte("wav"), p.Data)
}
