package collect

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/briefcast/internal/news"
)

const maxPerFeed = 20

// FeedConfig describes one RSS/Atom feed.
type FeedConfig struct {
	URL      string
	Name     string
	Category string
	Tags     []string
	Window   time.Duration
	Limit    int
}

// FeedSource reads an RSS or Atom feed.
type FeedSource struct {
	cfg    FeedConfig
	http   *httpGetter
	parser *gofeed.Parser
	now    func() time.Time
}

// NewFeedSource creates a feed adapter. A zero window defaults to one hour.
func NewFeedSource(cfg FeedConfig, timeout time.Duration, userAgent string) *FeedSource {
	if cfg.Name == "" {
		cfg.Name = extractSourceName(cfg.URL)
	}
	if cfg.Window == 0 {
		cfg.Window = time.Hour
	}
	if cfg.Limit == 0 {
		cfg.Limit = maxPerFeed
	}
	return &FeedSource{
		cfg:    cfg,
		http:   newHTTPGetter(timeout, userAgent),
		parser: gofeed.NewParser(),
		now:    time.Now,
	}
}

func (s *FeedSource) Name() string          { return s.cfg.Name }
func (s *FeedSource) Window() time.Duration { return s.cfg.Window }

func (s *FeedSource) Fetch(ctx context.Context, start, end time.Time) ([]news.Item, error) {
	body, err := s.http.get(ctx, s.cfg.URL, http.Header{
		"Accept": {"application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"},
	})
	if err != nil {
		return nil, err
	}

	feed, err := s.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", s.cfg.Name, err)
	}

	raw := make([]news.Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		if len(raw) >= s.cfg.Limit {
			break
		}
		if item, ok := parseItem(it, s.cfg); ok {
			raw = append(raw, item)
		}
	}

	return finish(s.cfg.Name, raw, start, end, s.now()), nil
}

func parseItem(item *gofeed.Item, cfg FeedConfig) (news.Item, bool) {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}

	title := cleanText(item.Title)
	if title == "" {
		return news.Item{}, false
	}

	publishedAt := item.Published
	if item.PublishedParsed != nil {
		publishedAt = news.FormatTime(*item.PublishedParsed)
	} else if item.UpdatedParsed != nil {
		publishedAt = news.FormatTime(*item.UpdatedParsed)
	} else if publishedAt == "" {
		publishedAt = item.Updated
	}

	var body string
	if item.Content != "" {
		body = cleanText(item.Content)
	} else if item.Description != "" {
		body = cleanText(item.Description)
	}

	tags := append([]string{cfg.Name}, cfg.Tags...)
	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" {
			tags = append(tags, c)
		}
	}
	return news.Item{
		Title:       title,
		Body:        body,
		Source:      cfg.Name,
		PublishedAt: publishedAt,
		URL:         itemURL,
		Category:    cfg.Category,
		Tags:        tags,
	}, true
}

// ArXivConfig describes an arXiv API query.
type ArXivConfig struct {
	BaseURL    string
	Categories []string
	MaxResults int
	Category   string
	Window     time.Duration
}

// ArXivSource queries the arXiv Atom API for the newest submissions in a set
// of subject categories.
type ArXivSource struct {
	cfg  ArXivConfig
	feed *FeedSource
}

// NewArXivSource creates an arXiv adapter.
func NewArXivSource(cfg ArXivConfig, timeout time.Duration, userAgent string) *ArXivSource {
	if cfg.MaxResults == 0 {
		cfg.MaxResults = maxPerFeed
	}
	if cfg.Category == "" {
		cfg.Category = "AI"
	}

	terms := make([]string, len(cfg.Categories))
	for i, c := range cfg.Categories {
		terms[i] = "cat:" + c
	}
	q := url.Values{
		"search_query": {strings.Join(terms, " OR ")},
		"sortBy":       {"submittedDate"},
		"sortOrder":    {"descending"},
		"max_results":  {fmt.Sprintf("%d", cfg.MaxResults)},
	}

	feed := NewFeedSource(FeedConfig{
		URL:      cfg.BaseURL + "?" + q.Encode(),
		Name:     "arXiv",
		Category: cfg.Category,
		Window:   cfg.Window,
		Limit:    cfg.MaxResults,
	}, timeout, userAgent)
	return &ArXivSource{cfg: cfg, feed: feed}
}

func (s *ArXivSource) Name() string          { return "arXiv" }
func (s *ArXivSource) Window() time.Duration { return s.feed.Window() }

func (s *ArXivSource) Fetch(ctx context.Context, start, end time.Time) ([]news.Item, error) {
	items, err := s.feed.Fetch(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for i := range items {
		tags := []string{"arXiv"}
		for _, t := range items[i].Tags {
			if s.wanted(t) {
				tags = append(tags, t)
			}
		}
		if len(tags) > 1 {
			items[i].Category = tags[1]
		}
		items[i].Tags = tags
	}
	return items, nil
}

// wanted reports whether an entry's subject term belongs to one of the
// queried categories; "q-fin" covers "q-fin.ST" and friends.
func (s *ArXivSource) wanted(term string) bool {
	for _, c := range s.cfg.Categories {
		if term == c || strings.HasPrefix(term, c+".") {
			return true
		}
	}
	return false
}
