package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/database/schema"
	"github.com/rs/zerolog"
)

// NotifierService announces newly ingested launches on a chat channel.
// Delivery is best effort; failures never roll back ingestion.
type NotifierService interface {
	IsEnabled() bool
	NotifyLaunch(ctx context.Context, record *schema.LaunchRecord) error
}

type telegramNotifierService struct {
	config   *koanf.Koanf
	logger   zerolog.Logger
	client   *http.Client
	botToken string
	chatID   string
}

func NewNotifierService(cfg *koanf.Koanf, logger zerolog.Logger) NotifierService {
	return &telegramNotifierService{
		config:   cfg,
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Second},
		botToken: cfg.String("telegram.bot-token"),
		chatID:   cfg.String("telegram.chat-id"),
	}
}

func (s *telegramNotifierService) IsEnabled() bool {
	return s.botToken != "" && s.chatID != ""
}

func (s *telegramNotifierService) NotifyLaunch(ctx context.Context, record *schema.LaunchRecord) error {
	if !s.IsEnabled() {
		return nil
	}

	text := fmt.Sprintf("New launch: %s [%s]\nRating: %d\n%s\n\n%s",
		record.Title, record.Launchpad, record.Rating, record.URL, record.Summary)

	payload := map[string]interface{}{
		"chat_id":                  s.chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	body, _ := json.Marshal(payload)
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("telegram sendMessage status %d", resp.StatusCode)
		time.Sleep(time.Duration(attempt) * time.Second)
	}

	s.logger.Warn().Err(lastErr).Str("title", record.Title).Msg("telegram notification failed")
	return lastErr
}
