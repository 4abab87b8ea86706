package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwoolee/stylereel/internal/cache"
)

func TestMemorySetGetRoundtrip(t *testing.T) {
	m := cache.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "test:key", []byte("hello"), 10*time.Second))

	val, found, err := m.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)
}

func TestMemoryGetNotFound(t *testing.T) {
	m := cache.NewMemory()

	val, found, err := m.Get(context.Background(), "nonexistent:key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := cache.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "expiry:key", []byte("temp"), 20*time.Millisecond))

	_, found, err := m.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(50 * time.Millisecond)

	_, found, err = m.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryDelete(t *testing.T) {
	m := cache.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "del:key", []byte("bye"), 10*time.Second))
	require.NoError(t, m.Delete(ctx, "del:key"))

	_, found, err := m.Get(ctx, "del:key")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, m.Delete(ctx, "does:not:exist"))
}

func TestMemoryJobStatus(t *testing.T) {
	m := cache.NewMemory()
	ctx := context.Background()
	jobID := uuid.New()

	require.NoError(t, m.SetJobStatus(ctx, jobID, "RENDERING", 10*time.Second))

	status, found, err := m.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "RENDERING", status)

	_, found, err = m.GetJobStatus(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryIncrWithExpiry(t *testing.T) {
	m := cache.NewMemory()
	ctx := context.Background()
	key := cache.RateLimitKey("client-1")

	for want := int64(1); want <= 3; want++ {
		val, err := m.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, val)
	}
}

func TestMemoryIncrWithExpiryResets(t *testing.T) {
	m := cache.NewMemory()
	ctx := context.Background()
	key := cache.RateLimitKey("client-2")

	_, err := m.IncrWithExpiry(ctx, key, 20*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	val, err := m.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

func TestKeyBuildersNonColliding(t *testing.T) {
	jobID := uuid.New()

	keys := map[string]bool{
		cache.JobStatusKey(jobID):    true,
		cache.RateLimitKey("client"): true,
		cache.ThumbnailKey("123456"): true,
	}
	assert.Len(t, keys, 3)
}
