package service

import (
	"context"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/module/shared"
)

type RateLimiterService struct {
	config      *koanf.Koanf
	redisClient *shared.RedisClient
}

func NewRateLimiterService(cfg *koanf.Koanf, redisClient *shared.RedisClient) *RateLimiterService {
	return &RateLimiterService{
		config:      cfg,
		redisClient: redisClient,
	}
}

func (s *RateLimiterService) Allow(ctx context.Context, token string) (bool, error) {
	limit := s.config.Int("app.rate-limit")
	if limit <= 0 {
		limit = shared.AllowApiKeyNilRateLimiter
	}

	key := "rate_limit:" + token
	interval := time.Second

	allowed, err := s.redisClient.Client.Eval(ctx, `
		local key = KEYS[1]
		local limit = tonumber(ARGV[1])
		local interval = tonumber(ARGV[2])
		local current = redis.call("GET", key)
		if current and tonumber(current) >= limit then
			return 0
		else
			redis.call("INCR", key)
			redis.call("EXPIRE", key, interval)
			return 1
		end
	`, []string{key}, limit, int64(interval.Seconds())).Int()

	if err != nil {
		return false, err
	}

	return allowed == 1, nil
}
