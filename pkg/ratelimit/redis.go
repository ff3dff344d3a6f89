package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisLimiter is a fixed-window limiter shared by every replica using the
// same Redis. It fails open when Redis cannot be reached.
type RedisLimiter struct {
	client  *redis.Client
	prefix  string
	window  time.Duration
	maxHits int
}

func NewRedisLimiter(client *redis.Client, prefix string, window time.Duration, maxHits int) *RedisLimiter {
	return &RedisLimiter{
		client:  client,
		prefix:  prefix,
		window:  window,
		maxHits: maxHits,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	bucket := time.Now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("key", redisKey).Msg("Rate limit check failed, allowing request")
		return true
	}

	return incr.Val() <= int64(l.maxHits)
}
