package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/internal/module/shared"
	"github.com/rs/zerolog"
)

// ContentFetcherService pulls page content through the crawler API and
// normalizes it to plain text for LLM consumption. A bare site root gets a
// crawl job so linked docs pages are included; any deeper URL gets a single
// page scrape.
type ContentFetcherService interface {
	FetchPage(ctx context.Context, pageURL string) (string, error)
	FetchSite(ctx context.Context, siteURL string) (string, error)
	// FetchAll fetches every link and renders one labeled document. Failed
	// and empty fetches are filtered out; when everything is filtered the
	// result is an empty string.
	FetchAll(ctx context.Context, links map[string]string) string
}

type contentFetcherService struct {
	config        *koanf.Koanf
	logger        zerolog.Logger
	client        shared.HTTPClient
	apiURL        string
	apiKey        string
	pollBase      time.Duration
	pollAttempts  int
	maxContentLen int
}

func NewContentFetcherService(cfg *koanf.Koanf, logger zerolog.Logger) ContentFetcherService {
	return &contentFetcherService{
		config:        cfg,
		logger:        logger,
		client:        &http.Client{Timeout: 30 * time.Second},
		apiURL:        strings.TrimSuffix(cfg.String("crawler.api-url"), "/"),
		apiKey:        cfg.String("crawler.api-key"),
		pollBase:      cfg.Duration("crawler.poll-base-delay"),
		pollAttempts:  cfg.Int("crawler.poll-max-attempts"),
		maxContentLen: cfg.Int("crawler.max-content-length"),
	}
}

func (s *contentFetcherService) headers() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if s.apiKey != "" {
		h["Authorization"] = "Bearer " + s.apiKey
	}
	return h
}

// FetchPage scrapes a single URL synchronously.
func (s *contentFetcherService) FetchPage(ctx context.Context, pageURL string) (string, error) {
	payload := map[string]interface{}{
		"url":     pageURL,
		"formats": []string{"markdown"},
	}
	body, statusCode, err := shared.DoPostRequest(s.client, s.apiURL+"/v1/scrape", payload, s.headers(), 30)
	if err != nil {
		return "", &shared.TransientFetchError{Op: "scrape " + pageURL, Err: err}
	}
	if statusCode != http.StatusOK {
		return "", &shared.TransientFetchError{Op: "scrape " + pageURL, Err: fmt.Errorf("status code %d", statusCode)}
	}

	var result map[string]interface{}
	if err := shared.ParseJSONResponse(body, &result); err != nil {
		return "", &shared.DataShapeError{Op: "scrape " + pageURL, Snippet: shared.Snippet(body)}
	}

	content := extractContent(result)
	if content == "" {
		return "", &shared.DataShapeError{Op: "scrape " + pageURL, Snippet: shared.Snippet(body)}
	}
	return content, nil
}

// FetchSite starts a crawl job for the site and polls until it completes.
// The delay doubles between polls.
func (s *contentFetcherService) FetchSite(ctx context.Context, siteURL string) (string, error) {
	payload := map[string]interface{}{
		"url":   siteURL,
		"limit": 10,
		"scrapeOptions": map[string]interface{}{
			"formats": []string{"markdown"},
		},
	}
	body, statusCode, err := shared.DoPostRequest(s.client, s.apiURL+"/v1/crawl", payload, s.headers(), 30)
	if err != nil {
		return "", &shared.TransientFetchError{Op: "crawl " + siteURL, Err: err}
	}
	if statusCode != http.StatusOK {
		return "", &shared.TransientFetchError{Op: "crawl " + siteURL, Err: fmt.Errorf("status code %d", statusCode)}
	}

	var started struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := shared.ParseJSONResponse(body, &started); err != nil || started.ID == "" {
		return "", &shared.DataShapeError{Op: "crawl " + siteURL, Snippet: shared.Snippet(body)}
	}

	delay := s.pollBase
	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2

		pollBody, pollStatus, err := shared.DoRequest(s.client, s.apiURL+"/v1/crawl/"+started.ID, s.headers(), 30)
		if err != nil || pollStatus != http.StatusOK {
			continue
		}

		var job map[string]interface{}
		if err := shared.ParseJSONResponse(pollBody, &job); err != nil {
			continue
		}

		status, _ := job["status"].(string)
		if status != "completed" {
			continue
		}

		var sections []string
		if data, ok := job["data"].([]interface{}); ok {
			for _, page := range data {
				if pageMap, ok := page.(map[string]interface{}); ok {
					if content := extractContent(pageMap); content != "" {
						sections = append(sections, content)
					}
				}
			}
		}
		if len(sections) == 0 {
			return "", &shared.DataShapeError{Op: "crawl " + siteURL, Snippet: shared.Snippet(pollBody)}
		}
		return strings.Join(sections, "\n\n"), nil
	}

	return "", &shared.TransientFetchError{Op: "crawl " + siteURL, Err: fmt.Errorf("job %s not completed after %d polls", started.ID, s.pollAttempts)}
}

func (s *contentFetcherService) FetchAll(ctx context.Context, links map[string]string) string {
	if len(links) == 0 {
		return ""
	}

	// Stable order keeps the rendered document deterministic.
	labels := make([]string, 0, len(links))
	for label := range links {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var sections []string
	for _, label := range labels {
		link := links[label]
		var content string
		var err error
		if isSiteRoot(link) {
			content, err = s.FetchSite(ctx, link)
		} else {
			content, err = s.FetchPage(ctx, link)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("url", link).Msg("content fetch failed, dropping section")
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		if s.maxContentLen > 0 && len(content) > s.maxContentLen {
			content = content[:s.maxContentLen]
		}
		sections = append(sections, fmt.Sprintf("=== %s (%s) ===\n%s", label, link, content))
	}
	return strings.Join(sections, "\n\n")
}

// isSiteRoot reports whether the URL points at a bare site root rather than a
// specific page.
func isSiteRoot(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Path == "" || u.Path == "/") && u.RawQuery == "" && u.Fragment == ""
}

// extractContent walks the known response shapes of the crawler API in
// preference order and falls back to stripping tags from raw html.
func extractContent(result map[string]interface{}) string {
	if data, ok := result["data"].(map[string]interface{}); ok {
		if markdown, ok := data["markdown"].(string); ok && markdown != "" {
			return markdown
		}
		if content, ok := data["content"].(string); ok && content != "" {
			return content
		}
		if text, ok := data["text"].(string); ok && text != "" {
			return text
		}
		if html, ok := data["html"].(string); ok && html != "" {
			return stripHTML(html)
		}
	}
	if data, ok := result["data"].([]interface{}); ok && len(data) > 0 {
		if first, ok := data[0].(map[string]interface{}); ok {
			if markdown, ok := first["markdown"].(string); ok && markdown != "" {
				return markdown
			}
		}
	}
	if markdown, ok := result["markdown"].(string); ok && markdown != "" {
		return markdown
	}
	if content, ok := result["content"].(string); ok && content != "" {
		return content
	}
	if text, ok := result["text"].(string); ok && text != "" {
		return text
	}
	if html, ok := result["html"].(string); ok && html != "" {
		return stripHTML(html)
	}
	return ""
}

var (
	htmlTagPattern    = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlStripPattern  = regexp.MustCompile(`<[^>]*>`)
	multiSpacePattern = regexp.MustCompile(`\s+`)
)

func stripHTML(html string) string {
	text := htmlTagPattern.ReplaceAllString(html, " ")
	text = htmlStripPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(multiSpacePattern.ReplaceAllString(text, " "))
}
