package service

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/launchlens/launch-lens/utils/config"
	"github.com/rs/zerolog"
)

// LaunchSummary is one item of a launchpad listing feed.
type LaunchSummary struct {
	Launchpad  string
	ExternalID string
	Title      string
	Raw        map[string]interface{}
}

type LaunchpadAPIService interface {
	// Launchpads returns the enabled upstream feeds.
	Launchpads() []config.Launchpad
	// RecentLaunches lists the newest items of one launchpad feed.
	RecentLaunches(ctx context.Context, launchpad config.Launchpad) ([]LaunchSummary, error)
	// LaunchDetail fetches the full upstream record for one item. A 404 from
	// the upstream maps to NotFoundError.
	LaunchDetail(ctx context.Context, launchpad config.Launchpad, externalID string) (map[string]interface{}, error)
}

type launchpadAPIService struct {
	config        *koanf.Koanf
	logger        zerolog.Logger
	client        shared.HTTPClient
	launchpads    []config.Launchpad
	retryAttempts int
	retryDelay    time.Duration
}

func NewLaunchpadAPIService(cfg *koanf.Koanf, logger zerolog.Logger) LaunchpadAPIService {
	var launchpads []config.Launchpad
	if err := cfg.Unmarshal("launchpads", &launchpads); err != nil {
		logger.Error().Err(err).Msg("failed to unmarshal launchpads config")
	}

	return &launchpadAPIService{
		config:        cfg,
		logger:        logger,
		client:        &http.Client{Timeout: 15 * time.Second},
		launchpads:    launchpads,
		retryAttempts: cfg.Int("fetch.retry-attempts"),
		retryDelay:    cfg.Duration("fetch.retry-base-delay"),
	}
}

func (s *launchpadAPIService) Launchpads() []config.Launchpad {
	var enabled []config.Launchpad
	for _, lp := range s.launchpads {
		if lp.Enabled {
			enabled = append(enabled, lp)
		}
	}
	return enabled
}

func (s *launchpadAPIService) RecentLaunches(ctx context.Context, launchpad config.Launchpad) ([]LaunchSummary, error) {
	url := launchpad.BaseURL
	if launchpad.PageSize != nil {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url = url + sep + "pagination[pageSize]=" + strconv.Itoa(*launchpad.PageSize)
	}

	var body []byte
	err := shared.Retry(ctx, s.retryAttempts, s.retryDelay, func() error {
		var statusCode int
		var err error
		body, statusCode, err = shared.DoRequest(s.client, url, launchpad.Headers, 15)
		if err != nil && statusCode == 0 {
			return &shared.TransientFetchError{Op: "list " + launchpad.Name, Err: err}
		}
		if statusCode != http.StatusOK {
			return &shared.TransientFetchError{Op: "list " + launchpad.Name, Status: statusCode, Err: fmt.Errorf("status code %d", statusCode)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var payload interface{}
	if err := shared.ParseJSONResponse(body, &payload); err != nil {
		return nil, &shared.DataShapeError{Op: "list " + launchpad.Name, Snippet: shared.Snippet(body)}
	}

	items := extractItems(payload)
	if items == nil {
		return nil, &shared.DataShapeError{Op: "list " + launchpad.Name, Snippet: shared.Snippet(body)}
	}

	var summaries []LaunchSummary
	for _, item := range items {
		raw, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		externalID := extractExternalID(raw)
		if externalID == "" {
			s.logger.Debug().Str("launchpad", launchpad.Name).Msg("skipping feed item without id")
			continue
		}
		summaries = append(summaries, LaunchSummary{
			Launchpad:  launchpad.Name,
			ExternalID: externalID,
			Title:      extractTitle(raw),
			Raw:        raw,
		})
	}
	return summaries, nil
}

func (s *launchpadAPIService) LaunchDetail(ctx context.Context, launchpad config.Launchpad, externalID string) (map[string]interface{}, error) {
	url := strings.TrimSuffix(launchpad.BaseURL, "/") + "/" + externalID
	if launchpad.DetailPath != "" {
		url = strings.Replace(launchpad.DetailPath, "{id}", externalID, 1)
	}

	var body []byte
	err := shared.Retry(ctx, s.retryAttempts, s.retryDelay, func() error {
		var statusCode int
		var err error
		body, statusCode, err = shared.DoRequest(s.client, url, launchpad.Headers, 15)
		if err != nil && statusCode == 0 {
			return &shared.TransientFetchError{Op: "detail " + launchpad.Name, Err: err}
		}
		if statusCode == http.StatusNotFound {
			return &shared.NotFoundError{Resource: "launch", ID: launchpad.Name + ":" + externalID}
		}
		if statusCode != http.StatusOK {
			return &shared.TransientFetchError{Op: "detail " + launchpad.Name, Status: statusCode, Err: fmt.Errorf("status code %d", statusCode)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := shared.ParseJSONResponse(body, &payload); err != nil {
		return nil, &shared.DataShapeError{Op: "detail " + launchpad.Name, Snippet: shared.Snippet(body)}
	}

	// Detail endpoints often wrap the record in a data envelope.
	if data, ok := payload["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return payload, nil
}

// extractItems unwraps the common feed envelopes: a bare array, or an array
// under a data key.
func extractItems(payload interface{}) []interface{} {
	switch v := payload.(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		if data, ok := v["data"].([]interface{}); ok {
			return data
		}
		if results, ok := v["results"].([]interface{}); ok {
			return results
		}
	}
	return nil
}

func extractExternalID(raw map[string]interface{}) string {
	switch id := raw["id"].(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	}
	if id, ok := raw["uuid"].(string); ok {
		return id
	}
	return ""
}

func extractTitle(raw map[string]interface{}) string {
	for _, key := range []string{"name", "title", "symbol"} {
		if title, ok := raw[key].(string); ok && title != "" {
			return title
		}
	}
	return ""
}
