package redis

import (
	"context"
	"testing"
	"time"

	"tour-booking/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client using miniredis for testing
func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedis(client, logger.NewNop(), time.Hour), mr
}

func TestIntentLock(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.LockIntent(ctx, "booking-1", "req-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.LockIntent(ctx, "booking-1", "req-b")
	require.NoError(t, err)
	assert.False(t, ok, "second caller must wait")

	// only the owner can release
	require.NoError(t, r.UnlockIntent(ctx, "booking-1", "req-b"))
	assert.True(t, mr.Exists("intent_lock:booking-1"))

	require.NoError(t, r.UnlockIntent(ctx, "booking-1", "req-a"))
	assert.False(t, mr.Exists("intent_lock:booking-1"))

	// expired locks free themselves
	ok, err = r.LockIntent(ctx, "booking-2", "req-a")
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(r.LockTTL + time.Second)
	ok, err = r.LockIntent(ctx, "booking-2", "req-b")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.UnlockIntent(ctx, "never-locked", "req-a"))
}

func TestEventMarkers(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	seen, err := r.EventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, r.MarkEventProcessed(ctx, "evt_1", "confirmed"))
	seen, err = r.EventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	val, err := mr.Get("stripe_event:evt_1")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", val)

	mr.FastForward(2 * time.Hour)
	seen, err = r.EventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisDownSurfacesErrors(t *testing.T) {
	r, mr := setupTestRedis(t)
	mr.Close()

	_, err := r.EventProcessed(context.Background(), "evt_1")
	assert.Error(t, err)
	assert.Error(t, r.MarkEventProcessed(context.Background(), "evt_1", "noop"))
}
