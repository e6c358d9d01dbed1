package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/news"
)

const maxPageBytes = 4 << 20

// Result holds the results of an enrichment pass.
type Result struct {
	Fetched int
	Skipped int
	Failed  int
}

// Enricher replaces thin item bodies with the article text extracted from
// the item's page.
type Enricher struct {
	client       *http.Client
	minBodyChars int
	userAgent    string
}

// NewEnricher creates an enricher. Items whose body has fewer than
// minBodyChars characters are fetched.
func NewEnricher(timeout time.Duration, minBodyChars int, userAgent string) *Enricher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if userAgent == "" {
		userAgent = "briefcast/1.0 (news briefing)"
	}
	return &Enricher{
		minBodyChars: minBodyChars,
		userAgent:    userAgent,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Enrich returns items with thin bodies filled in where extraction works.
// A domain that answers with an HTTP error is not asked again this pass.
func (e *Enricher) Enrich(ctx context.Context, items []news.Item) ([]news.Item, *Result) {
	result := &Result{}
	out := make([]news.Item, len(items))
	copy(out, items)

	failedDomains := make(map[string]struct{})
	for i, item := range out {
		if utf8.RuneCountInString(item.Body) >= e.minBodyChars || item.URL == "" {
			result.Skipped++
			continue
		}

		domain := domainOf(item.URL)
		if _, failed := failedDomains[domain]; failed {
			result.Failed++
			continue
		}

		text, httpErr := e.fetchArticleText(ctx, item.URL)
		if httpErr != nil {
			result.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			log.Debug().Err(httpErr).Str("domain", domain).Msg("HTTP error, skipping remaining items from domain")
			continue
		}

		if utf8.RuneCountInString(text) > utf8.RuneCountInString(item.Body) {
			out[i].Body = text
			result.Fetched++
		} else {
			result.Failed++
		}
	}

	log.Info().Int("fetched", result.Fetched).Int("failed", result.Failed).Int("skipped", result.Skipped).
		Msg("Content enrichment complete")
	return out, result
}

// fetchArticleText returns the readable text of a page. Only HTTP status
// failures are returned as errors; everything else yields empty text.
func (e *Enricher) fetchArticleText(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", nil
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", nil // connection error, not HTTP error
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return "", nil
	}

	return strings.Join(strings.Fields(article.TextContent), " "), nil
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
