package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// incrWithTTL 对固定窗口计数器加一，首次写入时设置过期。
func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// 认证相关的 Redis 键。
const (
	refreshBlacklistPrefix = "auth:refresh:blacklist:"
	loginRatePrefix        = "rate:login:"
	loginFailPrefix        = "lock:login:fail:"
	loginLockPrefix        = "lock:login:"
	resendRatePrefix       = "rate:resend:"
)
