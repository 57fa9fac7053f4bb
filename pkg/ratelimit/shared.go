package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// SharedBackend implements Backend over a Redis sorted set per key: each
// member is a unique attempt, scored by its arrival time in nanoseconds.
// A check trims entries older than the window, appends the current
// attempt, and counts what remains — all inside one pipelined transaction
// so concurrent callers never race on the trim-then-count sequence.
type SharedBackend struct {
	client *redis.Client
	logger *slog.Logger
}

// NewSharedBackend constructs a Redis-backed Backend.
func NewSharedBackend(client *redis.Client, logger *slog.Logger) *SharedBackend {
	return &SharedBackend{client: client, logger: logger}
}

func (b *SharedBackend) Name() string { return "shared" }

func (b *SharedBackend) Allow(ctx context.Context, key string, limit int) (Decision, error) {
	now := time.Now()
	windowStart := now.Add(-window)
	member := fmt.Sprintf("%d", now.UnixNano())
	redisKey := "ratelimit:" + key

	var card *redis.IntCmd
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
		pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
		card = pipe.ZCard(ctx, redisKey)
		pipe.Expire(ctx, redisKey, window)
		return nil
	})
	if err != nil {
		// Fail open: a shared-backend transport error must not block traffic.
		b.logger.Warn("ratelimit: shared backend error, failing open", "error", err)
		return Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: now.Add(window)}, nil
	}

	count := int(card.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}, nil
}
