package shared

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LaunchThrottler backs off repeated detail fetches for launches whose
// upstream records keep failing, so a broken item cannot occupy every pass.
type LaunchThrottler struct {
	redisClient   *RedisClient
	logger        zerolog.Logger
	launchChecker LaunchChecker
}

type LaunchChecker interface {
	CheckLaunchExists(launchpad string, externalID string) (bool, error)
}

const (
	LaunchThrottlePrefix = "launch_throttle:"

	LaunchThrottleCountPrefix = "launch_throttle_count:"

	LaunchThrottleDuration = 60 * 1 * time.Second

	LaunchThrottleCountResetDuration = 30 * time.Minute

	LaunchMaxThrottleCount = 3
)

func NewLaunchThrottler(redisClient *RedisClient, logger zerolog.Logger, launchChecker LaunchChecker) *LaunchThrottler {
	return &LaunchThrottler{
		redisClient:   redisClient,
		logger:        logger,
		launchChecker: launchChecker,
	}
}

func (t *LaunchThrottler) throttleKey(launchpad, externalID string) string {
	return LaunchThrottlePrefix + launchpad + ":" + externalID
}

// IsLaunchThrottled reports whether detail fetches for this launch are
// currently suppressed.
func (t *LaunchThrottler) IsLaunchThrottled(launchpad string, externalID string) bool {
	ctx := context.Background()

	if _, err := t.redisClient.Client.Get(ctx, t.throttleKey(launchpad, externalID)).Result(); err == nil {
		return true
	}

	return false
}

func (t *LaunchThrottler) GetAlertedKey(launchpad string, externalID string) string {
	if externalID == "" {
		return ""
	}
	return LaunchThrottleCountPrefix + launchpad + ":" + externalID + ":alerted"
}

// LaunchThrottle bumps the failure count after an upstream error and returns
// true once the count crosses the limit. A 429 status throttles immediately
// without counting.
func (t *LaunchThrottler) LaunchThrottle(launchpad string, externalID string, requestStatus string) bool {
	ctx := context.Background()
	throttleKey := t.throttleKey(launchpad, externalID)

	if requestStatus == "429" {
		if err := t.redisClient.Client.Set(ctx, throttleKey, "1", 3*time.Minute).Err(); err != nil {
			t.logger.Error().Err(err).Msgf("failed to set throttle key: %s %s", launchpad, externalID)
		}
		return false
	}

	throttleCountKey := LaunchThrottleCountPrefix + launchpad + ":" + externalID

	alertedKey := t.GetAlertedKey(launchpad, externalID)

	count, err := t.redisClient.Client.Incr(ctx, throttleCountKey).Result()
	if err != nil {
		t.logger.Error().Err(err).Msgf("failed to increment throttle count: %s %s", launchpad, externalID)
		return false
	}
	if count == 1 {
		if err := t.redisClient.Client.Expire(ctx, throttleCountKey, LaunchThrottleCountResetDuration).Err(); err != nil {
			t.logger.Error().Err(err).Msgf("failed to expire throttle count key: %s %s", launchpad, externalID)
		}
	}

	if count >= LaunchMaxThrottleCount {
		launchExists, err := t.launchChecker.CheckLaunchExists(launchpad, externalID)
		if err != nil {
			t.logger.Error().Err(err).Msgf("failed to check launch existence: %s %s", launchpad, externalID)
			return false
		}

		var duration time.Duration
		if !launchExists {
			// Unknown upstream id keeps failing, back off for a day.
			duration = 24 * time.Hour
		} else {
			duration = 30 * time.Minute
		}

		if err := t.redisClient.Client.Set(ctx, throttleKey, "1", duration).Err(); err != nil {
			t.logger.Error().Err(err).Msgf("failed to set throttle key: %s %s", launchpad, externalID)
			return false
		}

		alertCount, _ := t.redisClient.Client.Incr(ctx, alertedKey).Result()
		if alertCount == 1 {
			if err := t.redisClient.Client.Expire(ctx, alertedKey, SlackNotificationResetDuration).Err(); err != nil {
				t.logger.Error().Err(err).Msgf("failed to set alert flag: %s %s", launchpad, externalID)
			}
		}

		if err := t.redisClient.Client.Del(ctx, throttleCountKey).Err(); err != nil {
			t.logger.Error().Err(err).Msgf("failed to delete throttle count key: %s %s", launchpad, externalID)
		}
		return true
	}

	if err := t.redisClient.Client.Set(ctx, throttleKey, "1", LaunchThrottleDuration).Err(); err != nil {
		t.logger.Error().Err(err).Msgf("failed to set throttle key: %s %s", launchpad, externalID)
	}
	return false
}
