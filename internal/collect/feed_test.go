package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rssDoc(items ...string) string {
	body := ""
	for _, it := range items {
		body += it
	}
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Test</title><link>https://example.com</link>` + body + `</channel></rss>`
}

func rssItem(title, link, pubDate, desc string) string {
	return fmt.Sprintf(`<item><title>%s</title><link>%s</link><pubDate>%s</pubDate><description><![CDATA[%s]]></description><category>Markets</category></item>`,
		title, link, pubDate, desc)
}

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFeedSourceFetch(t *testing.T) {
	doc := rssDoc(
		rssItem("Fresh story", "https://example.com/a", testNow.Add(-20*time.Minute).Format(time.RFC1123Z), "<p>Body of <b>A</b></p>"),
		rssItem("Old story", "https://example.com/b", testNow.Add(-5*time.Hour).Format(time.RFC1123Z), "old"),
		rssItem("Subscribe now", "https://example.com/c", testNow.Add(-10*time.Minute).Format(time.RFC1123Z), "paywalled"),
	)
	srv := serve(t, "application/rss+xml", doc)

	src := NewFeedSource(FeedConfig{URL: srv.URL, Name: "Example", Category: "财经/商业"}, time.Second, "test")
	src.now = func() time.Time { return testNow }

	items, err := src.Fetch(context.Background(), testNow.Add(-time.Hour), testNow)
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, "Fresh story", it.Title)
	assert.Equal(t, "Body of A", it.Body)
	assert.Equal(t, "Example", it.Source)
	assert.Equal(t, "财经/商业", it.Category)
	assert.Equal(t, rfc3339(testNow.Add(-20*time.Minute)), it.PublishedAt)
	assert.Contains(t, it.Tags, "Markets")
	assert.Equal(t, time.Hour, src.Window())
}

func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func TestFeedSourceRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	doc := rssDoc(rssItem("Story", "https://example.com/a", testNow.Add(-time.Minute).Format(time.RFC1123Z), "x"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, doc)
	}))
	defer srv.Close()

	src := NewFeedSource(FeedConfig{URL: srv.URL}, time.Second, "test")
	src.http.backoff = time.Millisecond
	src.now = func() time.Time { return testNow }

	items, err := src.Fetch(context.Background(), testNow.Add(-time.Hour), testNow)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFeedSourceDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	src := NewFeedSource(FeedConfig{URL: srv.URL}, time.Second, "test")
	src.http.backoff = time.Millisecond

	_, err := src.Fetch(context.Background(), testNow.Add(-time.Hour), testNow)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFeedSourceInvalidFeed(t *testing.T) {
	srv := serve(t, "text/plain", "definitely not xml")
	src := NewFeedSource(FeedConfig{URL: srv.URL, Name: "Broken"}, time.Second, "test")

	_, err := src.Fetch(context.Background(), testNow.Add(-time.Hour), testNow)
	assert.Error(t, err)
}

func TestArXivSourceTagsCategories(t *testing.T) {
	published := testNow.Add(-time.Hour).Format(time.RFC3339)
	atom := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>arXiv Query</title>
  <entry>
    <id>http://arxiv.org/abs/2602.00001v1</id>
    <title>Scaling Laws for Tiny Models</title>
    <summary>We study small models.</summary>
    <published>` + published + `</published>
    <updated>` + published + `</updated>
    <link href="http://arxiv.org/abs/2602.00001v1" rel="alternate" type="text/html"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
    <category term="stat.ML" scheme="http://arxiv.org/schemas/atom"/>
    <category term="q-fin.ST" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
</feed>`

	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("search_query")
		fmt.Fprint(w, atom)
	}))
	defer srv.Close()

	src := NewArXivSource(ArXivConfig{
		BaseURL:    srv.URL,
		Categories: []string{"cs.AI", "cs.LG", "q-fin"},
		Window:     3 * time.Hour,
	}, time.Second, "test")
	src.feed.now = func() time.Time { return testNow }

	items, err := src.Fetch(context.Background(), testNow.Add(-3*time.Hour), testNow)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "cat:cs.AI OR cat:cs.LG OR cat:q-fin", query)
	assert.Equal(t, "arXiv", items[0].Source)
	assert.Equal(t, "cs.LG", items[0].Category)
	assert.Equal(t, []string{"arXiv", "cs.LG", "q-fin.ST"}, items[0].Tags)
	assert.Equal(t, "http://arxiv.org/abs/2602.00001v1", items[0].URL)
}
