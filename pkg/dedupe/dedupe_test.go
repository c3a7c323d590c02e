package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreClaimOncePerKey(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	claimed, err := store.Claim(context.Background(), "evt-1:wf-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.Claim(context.Background(), "evt-1:wf-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = store.Claim(context.Background(), "evt-2:wf-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed, "distinct keys are independent")
}

func TestMemoryStoreClaimAfterExpiry(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	claimed, err := store.Claim(context.Background(), "evt-1:wf-1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, claimed)

	time.Sleep(20 * time.Millisecond)

	claimed, err = store.Claim(context.Background(), "evt-1:wf-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed, "expired keys are claimable again")
}

func TestRedisStoreClaim(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	store := NewRedisStoreFromClient(client)
	defer store.Close()

	claimed, err := store.Claim(context.Background(), "evt-1:wf-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.Claim(context.Background(), "evt-1:wf-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)

	assert.True(t, server.Exists(keyPrefix+"evt-1:wf-1"))
}

func TestRedisStoreClaimAfterExpiry(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	store := NewRedisStoreFromClient(client)
	defer store.Close()

	claimed, err := store.Claim(context.Background(), "evt-1:wf-1", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	server.FastForward(2 * time.Minute)

	claimed, err = store.Claim(context.Background(), "evt-1:wf-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not-a-url")
	assert.Error(t, err)
}
