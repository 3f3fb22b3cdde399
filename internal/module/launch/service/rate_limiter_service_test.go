package service_test

import (
	"context"
	"testing"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/module/launch/service"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The limiter's counting lives in a redis Lua script, so these tests need a
// real instance and skip when none is configured.
func setupRateLimiterService(t *testing.T, limit int) (*service.RateLimiterService, *shared.RedisClient) {
	redisClient := shared.SetupRealRedis()
	if redisClient == nil {
		t.Skip("no redis dsn configured")
	}
	redisClient.Client.Del(context.Background(), "rate_limit:test_token")

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"app.rate-limit": limit,
	}, "."), nil); err != nil {
		panic(err)
	}
	return service.NewRateLimiterService(k, redisClient), redisClient
}

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	limiter, _ := setupRateLimiterService(t, 5)

	allowed, err := limiter.Allow(context.Background(), "test_token")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	limiter, _ := setupRateLimiterService(t, 2)

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(context.Background(), "test_token")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(context.Background(), "test_token")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRateLimiterRedisError(t *testing.T) {
	limiter, redisClient := setupRateLimiterService(t, 5)

	redisClient.Client.Close()

	allowed, err := limiter.Allow(context.Background(), "test_token")
	assert.Error(t, err)
	assert.False(t, allowed)
}
