package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/news"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsAPIConfig describes a NewsAPI /everything search.
type NewsAPIConfig struct {
	BaseURL   string
	APIKey    string
	Query     string
	Languages []string
	Domains   []string
	PageSize  int
	Category  string
	Window    time.Duration
}

// NewsAPISource searches NewsAPI once per configured language.
type NewsAPISource struct {
	cfg  NewsAPIConfig
	http *httpGetter
	now  func() time.Time
}

// NewNewsAPISource creates a NewsAPI adapter.
func NewNewsAPISource(cfg NewsAPIConfig, timeout time.Duration) *NewsAPISource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = newsAPIBaseURL
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 20
	}
	if cfg.Window == 0 {
		cfg.Window = 2 * time.Hour
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en"}
	}
	return &NewsAPISource{cfg: cfg, http: newHTTPGetter(timeout, ""), now: time.Now}
}

// IsConfigured returns whether the API key is available.
func (s *NewsAPISource) IsConfigured() bool {
	return s.cfg.APIKey != ""
}

func (s *NewsAPISource) Name() string          { return "NewsAPI" }
func (s *NewsAPISource) Window() time.Duration { return s.cfg.Window }

func (s *NewsAPISource) Fetch(ctx context.Context, start, end time.Time) ([]news.Item, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("NewsAPI key not configured")
	}

	var raw []news.Item
	var lastErr error
	for _, lang := range s.cfg.Languages {
		items, err := s.search(ctx, lang, start, end)
		if err != nil {
			log.Warn().Err(err).Str("language", lang).Msg("NewsAPI search failed")
			lastErr = err
			continue
		}
		raw = append(raw, items...)
	}
	if len(raw) == 0 && lastErr != nil {
		return nil, lastErr
	}

	return finish("NewsAPI", raw, start, end, s.now()), nil
}

func (s *NewsAPISource) search(ctx context.Context, lang string, start, end time.Time) ([]news.Item, error) {
	params := url.Values{
		"q":        {s.cfg.Query},
		"from":     {start.UTC().Format(time.RFC3339)},
		"to":       {end.UTC().Format(time.RFC3339)},
		"language": {lang},
		"pageSize": {fmt.Sprintf("%d", s.cfg.PageSize)},
		"sortBy":   {"publishedAt"},
	}
	if len(s.cfg.Domains) > 0 {
		params.Set("domains", strings.Join(s.cfg.Domains, ","))
	}

	body, err := s.http.get(ctx, s.cfg.BaseURL+"?"+params.Encode(), http.Header{
		"X-Api-Key": {s.cfg.APIKey},
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			Content     string `json:"content"`
			Description string `json:"description"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding NewsAPI response: %w", err)
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("NewsAPI status %q: %s", result.Status, result.Message)
	}

	var items []news.Item
	for _, a := range result.Articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		if a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}

		content := a.Content
		if content == "" {
			content = a.Description
		}

		source := "NewsAPI"
		if a.Source.Name != "" {
			source = a.Source.Name
		}

		items = append(items, news.Item{
			Title:       cleanText(a.Title),
			Body:        cleanText(content),
			Source:      source,
			PublishedAt: a.PublishedAt,
			URL:         a.URL,
			Category:    s.cfg.Category,
			Tags:        []string{"NewsAPI", lang},
		})
	}

	log.Debug().Int("articles", len(items)).Str("language", lang).Msg("Fetched from NewsAPI")
	return items, nil
}
