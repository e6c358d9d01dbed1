package collect

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/briefcast/internal/config"
	"github.com/TobiSchelling/briefcast/internal/metrics"
	"github.com/TobiSchelling/briefcast/internal/news"
)

// Result holds the results of a collection run.
type Result struct {
	Items      []news.Item
	TotalFound int
	Duplicates int
	Sources    map[string]int
	Failed     []string
}

// Collector fans out to every configured source and merges the results.
type Collector struct {
	sources []Source
	now     func() time.Time
}

// NewCollector creates a collector for all sources enabled in cfg.
func NewCollector(cfg *config.Config) *Collector {
	return NewCollectorWithSources(SourcesFromConfig(cfg)...)
}

// NewCollectorWithSources creates a collector over an explicit source list.
func NewCollectorWithSources(sources ...Source) *Collector {
	return &Collector{sources: sources, now: time.Now}
}

// SourcesFromConfig builds the adapters in configuration order.
func SourcesFromConfig(cfg *config.Config) []Source {
	sc := cfg.Sources
	var sources []Source

	for _, f := range sc.Feeds {
		feed := NewFeedSource(FeedConfig{
			URL:      f.URL,
			Name:     f.Name,
			Category: f.Category,
			Window:   f.Window,
			Limit:    f.Limit,
		}, sc.Timeout, sc.UserAgent)
		if f.Fallback == nil {
			sources = append(sources, feed)
			continue
		}
		page := NewHTMLSource(htmlConfig(*f.Fallback), sc.Timeout, sc.UserAgent)
		sources = append(sources, NewFallback(feed.Name(), feed, page))
	}

	for _, p := range sc.HTML {
		sources = append(sources, NewHTMLSource(htmlConfig(p), sc.Timeout, sc.UserAgent))
	}

	if sc.ArXiv.Enabled {
		sources = append(sources, NewArXivSource(ArXivConfig{
			BaseURL:    sc.ArXiv.BaseURL,
			Categories: sc.ArXiv.Categories,
			MaxResults: sc.ArXiv.MaxResults,
			Category:   sc.ArXiv.Category,
			Window:     sc.ArXiv.Window,
		}, sc.Timeout, sc.UserAgent))
	}

	if sc.GNews.Enabled {
		if cfg.Secrets.GNewsAPIKey == "" {
			log.Warn().Msg("GNews enabled but GNEWS_API_KEY is not set, skipping")
		} else {
			sources = append(sources, NewGNewsSource(GNewsConfig{
				BaseURL:    sc.GNews.BaseURL,
				APIKey:     cfg.Secrets.GNewsAPIKey,
				Categories: sc.GNews.Categories,
				Countries:  sc.GNews.Countries,
				Lang:       sc.GNews.Lang,
				Max:        sc.GNews.Max,
				Window:     sc.GNews.Window,
			}, sc.Timeout))
		}
	}

	if sc.NewsAPI.Enabled {
		if cfg.Secrets.NewsAPIKey == "" {
			log.Warn().Msg("NewsAPI enabled but NEWSAPI_KEY is not set, skipping")
		} else {
			sources = append(sources, NewNewsAPISource(NewsAPIConfig{
				BaseURL:   sc.NewsAPI.BaseURL,
				APIKey:    cfg.Secrets.NewsAPIKey,
				Query:     sc.NewsAPI.Query,
				Languages: sc.NewsAPI.Languages,
				Domains:   sc.NewsAPI.Domains,
				PageSize:  sc.NewsAPI.PageSize,
				Category:  sc.NewsAPI.Category,
				Window:    sc.NewsAPI.Window,
			}, sc.Timeout))
		}
	}

	return sources
}

func htmlConfig(p config.HTMLPage) HTMLConfig {
	return HTMLConfig{
		URL:        p.URL,
		Name:       p.Name,
		Category:   p.Category,
		Window:     p.Window,
		Limit:      p.Limit,
		Item:       p.Item,
		Title:      p.Title,
		Link:       p.Link,
		Body:       p.Body,
		Tags:       p.Tags,
		Time:       p.Time,
		TimeAttr:   p.TimeAttr,
		TimeLayout: p.TimeLayout,
		Location:   config.Location(p.TimeZone),
		Match:      p.Match,
	}
}

// Sources returns the configured adapters.
func (c *Collector) Sources() []Source {
	return c.sources
}

// Collect queries every source concurrently. A failing source contributes
// nothing and never fails the run. Results are concatenated in source order
// and deduplicated by URL, falling back to title+timestamp.
func (c *Collector) Collect(ctx context.Context) *Result {
	r := &Result{Sources: make(map[string]int)}
	now := c.now()

	perSource := make([][]news.Item, len(c.sources))
	errs := make([]error, len(c.sources))

	var g errgroup.Group
	for i, src := range c.sources {
		g.Go(func() error {
			items, err := src.Fetch(ctx, now.Add(-src.Window()), now)
			perSource[i], errs[i] = items, err
			return nil
		})
	}
	_ = g.Wait()

	var all []news.Item
	for i, src := range c.sources {
		if errs[i] != nil {
			log.Warn().Err(errs[i]).Str("source", src.Name()).Msg("Source failed, continuing without it")
			metrics.SourceErrors.WithLabelValues(src.Name()).Inc()
			r.Failed = append(r.Failed, src.Name())
			continue
		}
		log.Info().Str("source", src.Name()).Int("items", len(perSource[i])).Msg("Collected")
		metrics.ItemsCollected.WithLabelValues(src.Name()).Add(float64(len(perSource[i])))
		r.Sources[src.Name()] += len(perSource[i])
		all = append(all, perSource[i]...)
	}

	r.TotalFound = len(all)
	r.Items = Dedupe(all)
	r.Duplicates = r.TotalFound - len(r.Items)

	log.Info().Int("found", r.TotalFound).Int("unique", len(r.Items)).Int("duplicates", r.Duplicates).
		Int("failed_sources", len(r.Failed)).Msg("Collection complete")
	return r
}
