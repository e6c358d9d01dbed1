package collect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sethvargo/go-retry"

	"github.com/TobiSchelling/briefcast/internal/news"
)

// Source is one news provider. Fetch returns normalized items published in
// [start, end]; the caller decides what an error means for the run.
type Source interface {
	Name() string
	Window() time.Duration
	Fetch(ctx context.Context, start, end time.Time) ([]news.Item, error)
}

const maxResponseBytes = 8 << 20

var stripPolicy = bluemonday.StrictPolicy()

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.Code)
}

// httpGetter performs GET requests with a per-request timeout and retries
// 429, 5xx and network errors.
type httpGetter struct {
	client    *http.Client
	userAgent string
	retries   uint64
	backoff   time.Duration
}

func newHTTPGetter(timeout time.Duration, userAgent string) *httpGetter {
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &httpGetter{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		retries:   2,
		backoff:   500 * time.Millisecond,
	}
}

func (g *httpGetter) get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	var body []byte
	b := retry.WithMaxRetries(g.retries, retry.NewExponential(g.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		if g.userAgent != "" && req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", g.userAgent)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(&StatusError{URL: redact(rawURL), Code: resp.StatusCode})
		}
		if resp.StatusCode >= 400 {
			return &StatusError{URL: redact(rawURL), Code: resp.StatusCode}
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return retry.RetryableError(err)
		}
		body = data
		return nil
	})
	return body, err
}

// redact drops the query string so API keys never reach logs.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	return u.String()
}

// cleanText strips markup and collapses whitespace.
func cleanText(s string) string {
	if strings.ContainsAny(s, "<&") {
		s = stripPolicy.Sanitize(s)
		s = htmlUnescaper.Replace(s)
	}
	return strings.Join(strings.Fields(s), " ")
}

var htmlUnescaper = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#34;", `"`,
	"&#39;", "'",
)

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds.", "news.", "export."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	if name == "" {
		return feedURL
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
