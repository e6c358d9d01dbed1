package collect

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/briefcast/internal/news"
)

// HTMLConfig describes a listing page scraped with CSS selectors. All
// selectors except Item are evaluated inside each Item match.
type HTMLConfig struct {
	URL        string
	Name       string
	Category   string
	Window     time.Duration
	Limit      int
	Item       string
	Title      string
	Link       string // element carrying href; defaults to the first <a>
	Body       string
	Tags       string
	Time       string
	TimeAttr   string // read the timestamp from this attribute instead of text
	TimeLayout string // Go layout; layouts without a date mean "today"
	Location   *time.Location
	Match      string
}

// HTMLSource scrapes a news listing page.
type HTMLSource struct {
	cfg  HTMLConfig
	http *httpGetter
	now  func() time.Time
}

// NewHTMLSource creates an HTML adapter.
func NewHTMLSource(cfg HTMLConfig, timeout time.Duration, userAgent string) *HTMLSource {
	if cfg.Name == "" {
		cfg.Name = extractSourceName(cfg.URL)
	}
	if cfg.Window == 0 {
		cfg.Window = time.Hour
	}
	if cfg.Limit == 0 {
		cfg.Limit = maxPerFeed
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Link == "" {
		cfg.Link = "a"
	}
	return &HTMLSource{cfg: cfg, http: newHTTPGetter(timeout, userAgent), now: time.Now}
}

func (s *HTMLSource) Name() string          { return s.cfg.Name }
func (s *HTMLSource) Window() time.Duration { return s.cfg.Window }

func (s *HTMLSource) Fetch(ctx context.Context, start, end time.Time) ([]news.Item, error) {
	body, err := s.http.get(ctx, s.cfg.URL, http.Header{
		"Accept":          {"text/html,application/xhtml+xml"},
		"Accept-Language": {"en-US,en;q=0.9,zh-CN;q=0.8,zh;q=0.7"},
	})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing page %s: %w", s.cfg.Name, err)
	}

	base, _ := url.Parse(s.cfg.URL)
	now := s.now()
	var raw []news.Item
	doc.Find(s.cfg.Item).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if item, ok := s.parseSelection(sel, base, now); ok {
			raw = append(raw, item)
		}
		return len(raw) < s.cfg.Limit
	})

	return finish(s.cfg.Name, raw, start, end, now), nil
}

func (s *HTMLSource) parseSelection(sel *goquery.Selection, base *url.URL, now time.Time) (news.Item, bool) {
	title := cleanText(sel.Find(s.cfg.Title).First().Text())
	if title == "" {
		return news.Item{}, false
	}

	href, _ := sel.Find(s.cfg.Link).First().Attr("href")
	link := resolveLink(base, href)
	if link == "" {
		return news.Item{}, false
	}

	var body string
	if s.cfg.Body != "" {
		body = cleanText(sel.Find(s.cfg.Body).First().Text())
	}

	tags := []string{s.cfg.Name}
	if s.cfg.Tags != "" {
		sel.Find(s.cfg.Tags).Each(func(_ int, t *goquery.Selection) {
			if tag := cleanText(t.Text()); tag != "" {
				tags = append(tags, tag)
			}
		})
	}

	if s.cfg.Match != "" {
		needle := strings.ToLower(s.cfg.Match)
		hay := strings.ToLower(title + " " + body + " " + strings.Join(tags, " "))
		if !strings.Contains(hay, needle) {
			return news.Item{}, false
		}
	}

	var publishedAt string
	if s.cfg.Time != "" {
		timeSel := sel.Find(s.cfg.Time).First()
		text := strings.TrimSpace(timeSel.Text())
		if s.cfg.TimeAttr != "" {
			if v, ok := timeSel.Attr(s.cfg.TimeAttr); ok {
				text = strings.TrimSpace(v)
			}
		}
		if t, ok := s.parseTime(text, now); ok {
			publishedAt = news.FormatTime(t)
		} else {
			publishedAt = text
		}
	}

	return news.Item{
		Title:       title,
		Body:        body,
		Source:      s.cfg.Name,
		PublishedAt: publishedAt,
		URL:         link,
		Category:    s.cfg.Category,
		Tags:        tags,
	}, true
}

// parseTime reads a page timestamp. A clock-only layout such as "15:04" is
// placed on today's date in the page's zone, or yesterday's when that would
// be in the future.
func (s *HTMLSource) parseTime(text string, now time.Time) (time.Time, bool) {
	if text == "" {
		return time.Time{}, false
	}
	if s.cfg.TimeLayout == "" {
		return news.ParseTime(text)
	}

	t, err := time.ParseInLocation(s.cfg.TimeLayout, text, s.cfg.Location)
	if err != nil {
		return news.ParseTime(text)
	}
	if t.Year() == 0 {
		local := now.In(s.cfg.Location)
		t = time.Date(local.Year(), local.Month(), local.Day(), t.Hour(), t.Minute(), t.Second(), 0, s.cfg.Location)
		if t.After(now) {
			t = t.AddDate(0, 0, -1)
		}
	}
	return t.UTC(), true
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
