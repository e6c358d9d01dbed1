package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/news"
)

const gnewsBaseURL = "https://gnews.io/api/v4/top-headlines"

// GNewsConfig describes GNews top-headline queries.
type GNewsConfig struct {
	BaseURL    string
	APIKey     string
	Categories []string
	Countries  []string
	Lang       string
	Max        int
	Window     time.Duration
}

// GNewsSource queries top headlines for every category × country pair.
type GNewsSource struct {
	cfg  GNewsConfig
	http *httpGetter
	now  func() time.Time
}

// NewGNewsSource creates a GNews adapter.
func NewGNewsSource(cfg GNewsConfig, timeout time.Duration) *GNewsSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = gnewsBaseURL
	}
	if cfg.Max == 0 {
		cfg.Max = 3
	}
	if cfg.Window == 0 {
		cfg.Window = time.Hour
	}
	if len(cfg.Countries) == 0 {
		cfg.Countries = []string{"us"}
	}
	return &GNewsSource{cfg: cfg, http: newHTTPGetter(timeout, ""), now: time.Now}
}

func (s *GNewsSource) Name() string          { return "GNews" }
func (s *GNewsSource) Window() time.Duration { return s.cfg.Window }

func (s *GNewsSource) Fetch(ctx context.Context, start, end time.Time) ([]news.Item, error) {
	if s.cfg.APIKey == "" {
		return nil, fmt.Errorf("GNews API key not configured")
	}

	var raw []news.Item
	var lastErr error
	for _, category := range s.cfg.Categories {
		for _, country := range s.cfg.Countries {
			items, err := s.topHeadlines(ctx, category, country, start, end)
			if err != nil {
				log.Warn().Err(err).Str("category", category).Str("country", country).Msg("GNews query failed")
				lastErr = err
				continue
			}
			raw = append(raw, items...)
		}
	}
	if len(raw) == 0 && lastErr != nil {
		return nil, lastErr
	}

	return finish("GNews", raw, start, end, s.now()), nil
}

func (s *GNewsSource) topHeadlines(ctx context.Context, category, country string, start, end time.Time) ([]news.Item, error) {
	params := url.Values{
		"apikey":   {s.cfg.APIKey},
		"category": {category},
		"country":  {country},
		"max":      {fmt.Sprintf("%d", s.cfg.Max)},
		"from":     {start.UTC().Format("2006-01-02T15:04:05Z")},
		"to":       {end.UTC().Format("2006-01-02T15:04:05Z")},
		"sortby":   {"publishedAt"},
		"expand":   {"content"},
	}
	if s.cfg.Lang != "" {
		params.Set("lang", s.cfg.Lang)
	}

	body, err := s.http.get(ctx, s.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Articles []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Content     string `json:"content"`
			URL         string `json:"url"`
			PublishedAt string `json:"publishedAt"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding GNews response: %w", err)
	}

	items := make([]news.Item, 0, len(result.Articles))
	for _, a := range result.Articles {
		content := a.Content
		if content == "" {
			content = a.Description
		}
		source := a.Source.Name
		if source == "" {
			source = "GNews"
		}
		items = append(items, news.Item{
			Title:       cleanText(a.Title),
			Body:        cleanText(content),
			Source:      source,
			PublishedAt: a.PublishedAt,
			URL:         a.URL,
			Category:    category,
			Tags:        []string{"GNews", category, country},
		})
	}
	return items, nil
}
