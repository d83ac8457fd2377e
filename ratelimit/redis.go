package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configures the Redis-backed sliding-window Driver.
type RedisOptions struct {
	Client *redis.Client
	Prefix string
}

// Redis implements a sliding-window counter using a Redis sorted set per
// key: one member per hit, scored by its unix-nano timestamp, trimmed on
// every Increment via ZREMRANGEBYSCORE. Grounded on core.RedisSchemaCache's
// prefix/TTL Options pattern.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(opts RedisOptions) *Redis {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "raffel:ratelimit:"
	}
	return &Redis{client: opts.Client, prefix: prefix}
}

func (r *Redis) keyFor(key string) string { return r.prefix + key }

func (r *Redis) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	redisKey := r.keyFor(key)
	now := time.Now()
	cutoff := now.Add(-window).UnixNano()
	member := now.UnixNano()

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, redisKey, &redis.Z{Score: float64(member), Member: member})
	pipe.Expire(ctx, redisKey, window)
	card := pipe.ZCard(ctx, redisKey)
	oldest := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	count := int(card.Val())
	var resetIn time.Duration
	if scores := oldest.Val(); len(scores) > 0 {
		oldestTime := time.Unix(0, int64(scores[0].Score))
		resetIn = window - now.Sub(oldestTime)
		if resetIn < 0 {
			resetIn = 0
		}
	}
	return count, resetIn, nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.keyFor(key)).Err()
}
