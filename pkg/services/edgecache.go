package services

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// redisCmds is the slice of the redis API the edge cache uses, satisfied
// by *redis.Client.
type redisCmds interface {
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	ZRange(ctx context.Context, key string, start int64, stop int64) *redis.StringSliceCmd
	ZAddNX(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
}

// edgeCache keeps the ordered follower/following id sets as redis ZSETs,
// keyed "<user_id>:followers" / "<user_id>:following". List reads
// populate it; mutations only ever invalidate. A mutation must never
// seed a key: a set built from one edge would shadow the full membership
// in mongodb on the next read.
type edgeCache struct {
	client redisCmds
}

func newEdgeCache(client redisCmds) *edgeCache {
	return &edgeCache{client: client}
}

// invalidate drops the cached id sets after a committed mutation.
// Deleting a cold key is a no-op.
func (c *edgeCache) invalidate(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// ids returns the cached id set for key and whether the key was warm.
func (c *edgeCache) ids(ctx context.Context, key string) ([]string, bool, error) {
	numCached, err := c.client.ZCard(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	if numCached == 0 {
		return nil, false, nil
	}
	ids, err := c.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

// populate writes the full id set under key, scored by position so that
// ZRange preserves the stored order.
func (c *edgeCache) populate(ctx context.Context, key string, ids []string) error {
	for i, id := range ids {
		err := c.client.ZAddNX(ctx, key, redis.Z{
			Member: id,
			Score:  float64(i),
		}).Err()
		if err != nil {
			return err
		}
	}
	return nil
}
