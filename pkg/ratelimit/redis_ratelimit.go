package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript 토큰 조회, 경과 시간만큼 리필, 1개 소비를 원자적으로 수행
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local tokens_key = key .. ":tokens"
	local timestamp_key = key .. ":timestamp"

	local tokens = tonumber(redis.call('GET', tokens_key))
	local last_update = tonumber(redis.call('GET', timestamp_key))

	if tokens == nil or last_update == nil then
		tokens = limit
		last_update = now
	end

	local elapsed = math.max(0, now - last_update)
	local refill_rate = limit / window
	local new_tokens = math.min(limit, tokens + (elapsed * refill_rate))

	local allowed = 0
	if new_tokens >= 1 then
		new_tokens = new_tokens - 1
		allowed = 1
	end

	redis.call('SET', tokens_key, tostring(new_tokens), 'EX', window * 2)
	redis.call('SET', timestamp_key, now, 'EX', window * 2)

	return {allowed, math.floor(new_tokens), now + window}
`)

// RedisRateLimiter Redis 기반 분산 Rate Limiter; 여러 인스턴스가 같은 한도를 공유
type RedisRateLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
}

// RedisRateLimiterConfig Redis Rate Limiter 설정
type RedisRateLimiterConfig struct {
	KeyPrefix string        // 키 접두사 (기본 "ratelimit:")
	Limit     int           // 윈도우 내 최대 요청 수
	Window    time.Duration // 윈도우 크기
}

// NewRedisRateLimiter wraps an existing client; the caller owns its lifecycle
func NewRedisRateLimiter(client *redis.Client, config RedisRateLimiterConfig) *RedisRateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ratelimit:"
	}
	if config.Limit <= 0 {
		config.Limit = 60
	}
	if config.Window < time.Second {
		config.Window = time.Minute
	}

	return &RedisRateLimiter{
		client:    client,
		keyPrefix: config.KeyPrefix,
		limit:     config.Limit,
		window:    config.Window,
	}
}

// Allow 요청 허용 여부 확인
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	d, err := r.Take(ctx, key)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// Take implements Limiter
func (r *RedisRateLimiter) Take(ctx context.Context, key string) (Decision, error) {
	now := time.Now().Unix()
	windowSeconds := int(r.window / time.Second)

	result, err := tokenBucketScript.Run(ctx, r.client, []string{r.keyPrefix + key}, r.limit, windowSeconds, now).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("redis script execution failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return Decision{}, fmt.Errorf("invalid script result: %v", result)
	}

	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	resetAt, _ := values[2].(int64)

	return Decision{
		Allowed:   allowed == 1,
		Limit:     int64(r.limit),
		Remaining: remaining,
		ResetAt:   time.Unix(resetAt, 0),
	}, nil
}

// Reset 특정 키의 Rate Limit 초기화
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	redisKey := r.keyPrefix + key

	pipe := r.client.Pipeline()
	pipe.Del(ctx, redisKey+":tokens")
	pipe.Del(ctx, redisKey+":timestamp")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}

	return nil
}

// Ping Redis 연결 확인
func (r *RedisRateLimiter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
