package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"lineage/internal/ratelimit/models"
)

// slidingWindow trims the sorted set to the window, then adds the request
// when there is room. It returns {allowed, count, oldest score in ms}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', tostring(now - window))
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, ARGV[1], ARGV[4])
  redis.call('PEXPIRE', key, ARGV[2])
  count = count + 1
  allowed = 1
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local first = now
if oldest[2] then
  first = tonumber(oldest[2])
end
return {allowed, count, first}
`)

// Redis shares windows between replicas. Each key is a sorted set of
// request timestamps that expires one window after its last write.
type Redis struct {
	clocked
	client *redis.Client
}

func NewRedis(client *redis.Client, opts ...Option) *Redis {
	s := &Redis{clocked: clocked{now: time.Now}, client: client}
	for _, opt := range opts {
		opt(&s.clocked)
	}
	return s
}

func (s *Redis) Allow(ctx context.Context, key string, limit models.Limit) (*models.Result, error) {
	now := s.now()
	vals, err := slidingWindow.Run(ctx, s.client, []string{key},
		now.UnixMilli(),
		limit.Window.Milliseconds(),
		limit.Requests,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("rate limit %s: unexpected reply %v", key, vals)
	}

	resetAt := time.UnixMilli(vals[2]).Add(limit.Window)
	if vals[0] == 0 {
		return denied(limit, now, resetAt), nil
	}
	return &models.Result{
		Allowed:   true,
		Limit:     limit.Requests,
		Remaining: limit.Requests - int(vals[1]),
		ResetAt:   resetAt,
	}, nil
}
