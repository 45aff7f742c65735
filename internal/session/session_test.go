package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemory(10 * time.Minute)
	store.now = func() time.Time { return now }

	ref := int64(42)
	require.NoError(t, store.Put(ctx, &Session{UserID: 1, ReferrerID: &ref, Stage: StageAwaitingPhone}))

	s, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, StageAwaitingPhone, s.Stage)
	require.NotNil(t, s.ReferrerID)
	assert.Equal(t, int64(42), *s.ReferrerID)

	now = now.Add(9 * time.Minute)
	s, err = store.Get(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, s)

	now = now.Add(time.Minute)
	s, err = store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryPutRefreshesTTLAndEvicts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemory(time.Minute)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, &Session{UserID: 1}))
	require.NoError(t, store.Put(ctx, &Session{UserID: 2}))

	now = now.Add(50 * time.Second)
	require.NoError(t, store.Put(ctx, &Session{UserID: 1, Stage: StageAwaitingCategory}))

	now = now.Add(20 * time.Second)
	assert.Equal(t, 1, store.Len())

	s, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, StageAwaitingCategory, s.Stage)

	require.NoError(t, store.Delete(ctx, 1))
	s, err = store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	store, err := NewRedis(ctx, addr, os.Getenv("REDIS_PASSWORD"), time.Minute)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, &Session{UserID: -1, Stage: StageAwaitingPhone, Phone: "+79991234567"}))
	s, err := store.Get(ctx, -1)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "+79991234567", s.Phone)

	require.NoError(t, store.Delete(ctx, -1))
	s, err = store.Get(ctx, -1)
	require.NoError(t, err)
	assert.Nil(t, s)
}
