package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

type SlackPayload struct {
	Channel   string `json:"channel"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	IconEmoji string `json:"icon_emoji"`
}

const (
	RedisErrorCountPrefix          = "error_count:"
	RedisErrorCountDuration        = 10 * time.Minute
	RedisErrorThreshold            = 5
	SlackNotificationResetDuration = 60 * 24 * time.Minute
)

type SlackClient struct {
	webhookURL  string
	channel     string
	username    string
	redisClient *RedisClient
	logger      zerolog.Logger
}

func NewSlackClient(cfg *koanf.Koanf, redisClient *RedisClient, logger zerolog.Logger) *SlackClient {
	return &SlackClient{
		webhookURL:  cfg.String("slack.webhook-url"),
		channel:     cfg.String("slack.channel"),
		username:    cfg.String("slack.username"),
		redisClient: redisClient,
		logger:      logger,
	}
}

func (s *SlackClient) SendAlert(alertedKey string, message string) error {
	if s.webhookURL == "" {
		return nil
	}
	ctx := context.Background()

	// Skip if the alert for this key was already delivered.
	if counterValue, err := s.redisClient.Client.Get(ctx, alertedKey).Result(); err == nil && counterValue != "1" {
		return nil
	}
	payload := SlackPayload{
		Channel:  s.channel,
		Username: s.username,
		Text:     message,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal Slack payload")
		return err
	}

	req, err := http.NewRequest("POST", s.webhookURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create Slack request")
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to send Slack request")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Error().Msgf("Slack request failed with status code: %d", resp.StatusCode)
		return err
	}

	s.logger.Info().Msg("Slack notification sent successfully")
	return nil
}

// HandleErrorWithThrottling counts errors per key and alerts once the count
// crosses the threshold inside the counting window.
func (s *SlackClient) HandleErrorWithThrottling(key string, errorMsg string) {
	ctx := context.Background()
	errorCountKey := RedisErrorCountPrefix + key
	alertedKey := errorCountKey + ":alerted"
	lockKey := errorCountKey + ":lock"
	lockAcquired, err := s.redisClient.Client.SetNX(ctx, lockKey, "1", time.Second*10).Result()
	if err != nil {
		return
	}
	if !lockAcquired {
		return
	}
	defer s.redisClient.Client.Del(ctx, lockKey)
	if _, err := s.redisClient.Client.Get(ctx, alertedKey).Result(); err == nil {
		return
	}
	count, err := s.redisClient.Client.Incr(ctx, errorCountKey).Result()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to increment error count")
		return
	}

	if count == 1 {
		s.redisClient.Client.Expire(ctx, errorCountKey, RedisErrorCountDuration)
	}

	if count >= RedisErrorThreshold {
		s.redisClient.Client.Set(ctx, alertedKey, "1", RedisErrorCountDuration)
		s.SendAlert(key, fmt.Sprintf("error count reached threshold %s: %s", key, errorMsg))
		s.redisClient.Client.Del(ctx, errorCountKey)
	}
}
