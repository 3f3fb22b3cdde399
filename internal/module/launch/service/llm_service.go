package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/database/schema"
	"github.com/rs/zerolog"
)

// LaunchScore is the LLM's assessment of one launch.
type LaunchScore struct {
	Summary  string `json:"summary"`
	Analysis string `json:"analysis"`
	Rating   int    `json:"rating"`
}

// LLMService scores launches with a language model. ScoreLaunch never fails
// the pipeline: on any provider error it returns the unscored placeholders.
type LLMService interface {
	IsEnabled() bool
	ScoreLaunch(ctx context.Context, description string, launchpad string) LaunchScore
}

type llmService struct {
	config    *koanf.Koanf
	logger    zerolog.Logger
	client    *http.Client
	provider  string
	apiURL    string
	apiKey    string
	model     string
	maxTokens int
}

func NewLLMService(cfg *koanf.Koanf, logger zerolog.Logger) LLMService {
	s := &llmService{
		config:    cfg,
		logger:    logger,
		client:    &http.Client{Timeout: 120 * time.Second},
		provider:  cfg.String("llm.provider"),
		apiURL:    cfg.String("llm.api-url"),
		apiKey:    cfg.String("llm.api-key"),
		model:     cfg.String("llm.model"),
		maxTokens: cfg.Int("llm.max-tokens"),
	}
	if s.apiKey == "" {
		s.provider = ""
		logger.Warn().Msg("No LLM API key configured, scoring disabled")
	} else {
		logger.Info().Str("provider", s.provider).Str("model", s.model).Msg("LLM scoring initialized")
	}
	return s
}

func (s *llmService) IsEnabled() bool {
	return s.provider != ""
}

func unscored() LaunchScore {
	return LaunchScore{
		Summary:  schema.LLMPlaceholder,
		Analysis: schema.LLMPlaceholder,
		Rating:   schema.RatingUnrated,
	}
}

func (s *llmService) ScoreLaunch(ctx context.Context, description string, launchpad string) LaunchScore {
	if !s.IsEnabled() {
		return unscored()
	}

	prompt := fmt.Sprintf(`You are an analyst reviewing new token launches on the %s launchpad.

Review the launch document below and return a JSON object with these fields:
{
  "summary": "2-3 sentence summary of what this project is",
  "analysis": "your assessment: team token handling, red flags, strengths",
  "rating": 0-10
}

Rating guidance: 0-2 likely scam or abandoned, 3-5 weak fundamentals, 6-8 credible project, 9-10 exceptional.
Weigh heavily: creator holding percentage, whether tokens were burned or locked, and the quality of the project description.

LAUNCH DOCUMENT:
%s

Return ONLY valid JSON, no other text.`, launchpad, description)

	raw, err := s.callLLM(ctx, prompt)
	if err != nil {
		s.logger.Warn().Err(err).Msg("LLM call failed, leaving launch unscored")
		return unscored()
	}

	var score LaunchScore
	if err := json.Unmarshal(extractJSON(raw), &score); err != nil {
		s.logger.Warn().Err(err).Str("response", truncate(raw, 200)).Msg("unparseable LLM response, leaving launch unscored")
		return unscored()
	}

	if score.Summary == "" {
		score.Summary = schema.LLMPlaceholder
	}
	if score.Analysis == "" {
		score.Analysis = schema.LLMPlaceholder
	}
	if score.Rating < schema.RatingUnrated {
		score.Rating = schema.RatingUnrated
	}
	if score.Rating > 10 {
		score.Rating = 10
	}
	return score
}

func (s *llmService) callLLM(ctx context.Context, prompt string) (string, error) {
	switch s.provider {
	case "anthropic":
		return s.callAnthropic(ctx, prompt)
	case "openai":
		return s.callOpenAI(ctx, prompt)
	default:
		return "", fmt.Errorf("no LLM provider configured")
	}
}

func (s *llmService) callAnthropic(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model":      s.model,
		"max_tokens": s.maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	body, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("anthropic API error %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	json.Unmarshal(respBody, &result)

	if len(result.Content) > 0 {
		return result.Content[0].Text, nil
	}
	return "", fmt.Errorf("empty response from anthropic")
}

func (s *llmService) callOpenAI(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens": s.maxTokens,
	}

	body, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("openai API error %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	json.Unmarshal(respBody, &result)

	if len(result.Choices) > 0 {
		return result.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("empty response from openai")
}

// extractJSON trims markdown code fences and slices to the outermost braces
// so fenced or chatty model output still parses.
func extractJSON(s string) []byte {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return []byte(s[start : end+1])
	}
	return []byte(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
