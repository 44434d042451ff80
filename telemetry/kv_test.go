package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKVPushAndRange(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	require.NoError(t, kv.LPush(ctx, "k", "first"))
	require.NoError(t, kv.LPush(ctx, "k", "second"))
	require.NoError(t, kv.LPush(ctx, "k", "third"))

	// Most recent first.
	got, err := kv.LRange(ctx, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, got)

	got, err = kv.LRange(ctx, "k", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second"}, got)

	got, err = kv.LRange(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryKVDeleteAndKeys(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	require.NoError(t, kv.LPush(ctx, "execution:1:logs", "a"))
	require.NoError(t, kv.LPush(ctx, "execution:1:outputs:x", "b"))
	require.NoError(t, kv.LPush(ctx, "execution:2:logs", "c"))

	keys, err := kv.Keys(ctx, "execution:1:")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	removed, err := kv.Delete(ctx, "execution:1:logs", "execution:1:outputs:x", "missing")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, kv.Len())
}

func TestMemoryKVPurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	current := time.Now()
	kv.now = func() time.Time { return current }

	require.NoError(t, kv.LPush(ctx, "old", "stale"))

	current = current.Add(10 * 24 * time.Hour)
	require.NoError(t, kv.LPush(ctx, "fresh", "recent"))

	removed, err := kv.PurgeOlderThan(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := kv.LRange(ctx, "fresh", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent"}, got)

	got, err = kv.LRange(ctx, "old", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryKVExpire(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	current := time.Now()
	kv.now = func() time.Time { return current }

	require.NoError(t, kv.LPush(ctx, "k", "v"))
	require.NoError(t, kv.Expire(ctx, "k", time.Hour))

	got, err := kv.LRange(ctx, "k", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	current = current.Add(2 * time.Hour)
	got, err = kv.LRange(ctx, "k", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Expired keys are reaped by the purge pass.
	removed, err := kv.PurgeOlderThan(ctx, 365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, kv.Len())
}
