package services

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	zsets map[string][]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{zsets: make(map[string][]string)}
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := f.zsets[key]; ok {
			delete(f.zsets, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (f *fakeRedis) ZCard(ctx context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(int64(len(f.zsets[key])), nil)
}

func (f *fakeRedis) ZRange(ctx context.Context, key string, start int64, stop int64) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(append([]string(nil), f.zsets[key]...), nil)
}

func (f *fakeRedis) ZAddNX(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	var added int64
	for _, member := range members {
		id := member.Member.(string)
		exists := false
		for _, m := range f.zsets[key] {
			if m == id {
				exists = true
				break
			}
		}
		if !exists {
			f.zsets[key] = append(f.zsets[key], id)
			added++
		}
	}
	return redis.NewIntResult(added, nil)
}

// A mutation against a cold key must leave the key cold: a cache entry
// seeded from a single edge would shadow the full membership in mongodb
// on the next list read.
func TestInvalidateLeavesColdKeyCold(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	cache := newEdgeCache(fake)

	require.NoError(t, cache.invalidate(ctx, "bob:followers", "alice:following"))

	_, warm, err := cache.ids(ctx, "bob:followers")
	require.NoError(t, err)
	assert.False(t, warm)
	assert.NotContains(t, fake.zsets, "bob:followers")
	assert.NotContains(t, fake.zsets, "alice:following")
}

func TestInvalidateDropsWarmKey(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	cache := newEdgeCache(fake)
	require.NoError(t, cache.populate(ctx, "bob:followers", []string{"carol"}))

	// a follow edge lands in mongodb, then the cache is invalidated
	require.NoError(t, cache.invalidate(ctx, "bob:followers", "alice:following"))

	_, warm, err := cache.ids(ctx, "bob:followers")
	require.NoError(t, err)
	assert.False(t, warm)

	// the next read repopulates from the full stored set
	require.NoError(t, cache.populate(ctx, "bob:followers", []string{"carol", "alice"}))
	ids, warm, err := cache.ids(ctx, "bob:followers")
	require.NoError(t, err)
	assert.True(t, warm)
	assert.Equal(t, []string{"carol", "alice"}, ids)
}

func TestIDsColdKeyIsMiss(t *testing.T) {
	ctx := context.Background()
	cache := newEdgeCache(newFakeRedis())

	ids, warm, err := cache.ids(ctx, "ghost:followers")
	require.NoError(t, err)
	assert.False(t, warm)
	assert.Empty(t, ids)
}

func TestPopulatePreservesOrder(t *testing.T) {
	ctx := context.Background()
	cache := newEdgeCache(newFakeRedis())

	require.NoError(t, cache.populate(ctx, "bob:followers", []string{"u3", "u1", "u2"}))
	ids, warm, err := cache.ids(ctx, "bob:followers")
	require.NoError(t, err)
	assert.True(t, warm)
	assert.Equal(t, []string{"u3", "u1", "u2"}, ids)
}
