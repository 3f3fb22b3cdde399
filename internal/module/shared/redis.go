package shared

import (
	"context"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RedisClient struct {
	Client           *redis.Client
	url              string
	options          *redis.Options
	retryCount       int
	keepliveInterval time.Duration
	logger           zerolog.Logger
}

const (
	redisLaunchCachePrefix = "launches:"
	redisSeenIDPrefix      = "launch_seen_ids:"
	seenIDTTL              = 14 * 24 * time.Hour
	batchSize              = 1000
	maxRetries             = 3
)

func NewRedisClient(cfg *koanf.Koanf, logger zerolog.Logger) *RedisClient {
	url := cfg.String("redis.url")
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Panic().Err(err).Msg("failed to parse redis url")
	}

	return &RedisClient{
		Client:           nil,
		options:          opts,
		logger:           logger,
		url:              url,
		retryCount:       cfg.Int("redis.retry-count"),
		keepliveInterval: cfg.Duration("redis.keeplive-interval"),
	}
}

func (r *RedisClient) keeplive() {
	for {
		if r.Client == nil {
			for i := 1; i <= r.retryCount; i++ {
				r.Client = redis.NewClient(r.options)
				_, err := r.Client.Ping(context.Background()).Result()
				if err == nil || err == redis.Nil {
					r.logger.Info().Msgf("Reconnected to Redis succesfully!")
					break
				}

				if i == r.retryCount {
					r.Close()
					r.logger.Panic().Msgf("Failed to connect to Redis: %v. Retrying in %v...\n", err, i)
					return
				}
				r.logger.Warn().Msgf("Failed to connect to Redis: %v. Retrying in %v...\n", err, i)
			}
		}

		time.Sleep(r.keepliveInterval)
	}
}

func (r *RedisClient) Connect() {
	r.Client = redis.NewClient(r.options)
	go r.keeplive()
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

func (r *RedisClient) DeleteKeysByPrefix(prefix string) error {
	ctx := context.Background()
	iter := r.Client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= batchSize {
			if err := r.DeleteKeyBatch(keys); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}

	// Delete remaining keys if any
	if len(keys) > 0 {
		if err := r.DeleteKeyBatch(keys); err != nil {
			return err
		}
	}

	if err := iter.Err(); err != nil {
		return err
	}
	return nil
}

func (r *RedisClient) DeleteKeyBatch(keys []string) error {
	ctx := context.Background()

	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[i:end]

		for retries := 0; retries < maxRetries; retries++ {
			pipe := r.Client.Pipeline()
			for _, key := range batch {
				pipe.Del(ctx, key)
			}
			_, err := pipe.Exec(ctx)
			if err != nil {
				if retries == maxRetries-1 {
					return err
				}
				continue
			}
			break
		}
	}

	return nil
}

func (r *RedisClient) AcquireLock(lockKey string, ttl time.Duration) bool {
	ctx := context.Background()
	ok, err := r.Client.SetNX(ctx, lockKey, "locked", ttl).Result()
	if err != nil {
		r.logger.Debug().Msg("failed to acquire lock key " + lockKey)
		return false
	}
	if !ok {
		r.logger.Debug().Msg("lock already held by another instance key:" + lockKey)
		return false
	}
	return true
}

func (r *RedisClient) ReleaseLock(lockKey string) {
	ctx := context.Background()
	r.Client.Del(ctx, lockKey)
}

// MarkExternalIDSeen records a launchpad-specific id so later passes can cheaply
// skip the detail fetch for items already ingested.
func (r *RedisClient) MarkExternalIDSeen(launchpad, externalID string) error {
	ctx := context.Background()
	setKey := redisSeenIDPrefix + launchpad
	if err := r.Client.SAdd(ctx, setKey, externalID).Err(); err != nil {
		return err
	}
	return r.Client.Expire(ctx, setKey, seenIDTTL).Err()
}

func (r *RedisClient) IsExternalIDSeen(launchpad, externalID string) (bool, error) {
	ctx := context.Background()
	return r.Client.SIsMember(ctx, redisSeenIDPrefix+launchpad, externalID).Result()
}

func (r *RedisClient) ForgetExternalID(launchpad, externalID string) error {
	ctx := context.Background()
	return r.Client.SRem(ctx, redisSeenIDPrefix+launchpad, externalID).Err()
}

// InvalidateLaunchCache drops all cached launch read views. Called by the
// gateway after every successful write.
func (r *RedisClient) InvalidateLaunchCache() error {
	return r.DeleteKeysByPrefix(redisLaunchCachePrefix)
}

func (r *RedisClient) SetLaunchListCache(key string, payload string, ttl time.Duration) error {
	return r.Client.Set(context.Background(), redisLaunchCachePrefix+key, payload, ttl).Err()
}

func (r *RedisClient) GetLaunchListCache(key string) (string, error) {
	return r.Client.Get(context.Background(), redisLaunchCachePrefix+key).Result()
}
