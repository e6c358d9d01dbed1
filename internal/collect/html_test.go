package collect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const livePage = `<html><body>
<div class="live-item">
  <a class="live-item-title" href="/livenews/1">美联储维持利率不变</a>
  <div class="live-item-content">市场预期落空</div>
  <span class="live-item-time">19:40</span>
</div>
<div class="live-item">
  <a class="live-item-title" href="/livenews/2">昨天的消息</a>
  <div class="live-item-content">旧闻</div>
  <span class="live-item-time">08:00</span>
</div>
<div class="live-item">
  <a class="live-item-title" href="/member/articles/3">会员专享</a>
  <span class="live-item-time">19:50</span>
</div>
<div class="live-item">
  <span class="live-item-content">no title here</span>
</div>
</body></html>`

func TestHTMLSourceClockOnlyTimes(t *testing.T) {
	srv := serve(t, "text/html", livePage)
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	src := NewHTMLSource(HTMLConfig{
		URL:        srv.URL + "/live/global",
		Name:       "WallstreetCN",
		Category:   "财经/商业",
		Item:       ".live-item",
		Title:      ".live-item-title",
		Link:       ".live-item-title",
		Body:       ".live-item-content",
		Time:       ".live-item-time",
		TimeLayout: "15:04",
		Location:   shanghai,
	}, time.Second, "test")
	// 12:00 UTC is 20:00 in Shanghai.
	src.now = func() time.Time { return testNow }

	items, err := src.Fetch(context.Background(), testNow.Add(-time.Hour), testNow)
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, "美联储维持利率不变", it.Title)
	assert.Equal(t, "市场预期落空", it.Body)
	assert.Equal(t, srv.URL+"/livenews/1", it.URL)
	assert.Equal(t, "2026-02-06T11:40:00Z", it.PublishedAt)
	assert.Equal(t, "WallstreetCN", it.Source)
}

const articlePage = `<html><body>
<article>
  <h2><a href="https://techcrunch.com/2026/02/06/agents/">AI agents ship</a></h2>
  <p>Startups race to deploy agents.</p>
  <time datetime="2026-02-06T11:30:00Z">30 minutes ago</time>
  <a class="tag-link" href="/tag/ai">AI</a>
</article>
<article>
  <h2><a href="https://techcrunch.com/2026/02/06/bikes/">E-bikes get cheaper</a></h2>
  <p>Hardware news.</p>
  <time datetime="2026-02-06T11:40:00Z">20 minutes ago</time>
  <a class="tag-link" href="/tag/transport">Transportation</a>
</article>
</body></html>`

func TestHTMLSourceAttrTimeAndMatch(t *testing.T) {
	srv := serve(t, "text/html", articlePage)

	src := NewHTMLSource(HTMLConfig{
		URL:      srv.URL,
		Name:     "TechCrunch",
		Item:     "article",
		Title:    "h2, h3",
		Body:     "p",
		Tags:     ".tag-link",
		Time:     "time",
		TimeAttr: "datetime",
		Match:    "ai",
	}, time.Second, "test")
	src.now = func() time.Time { return testNow }

	items, err := src.Fetch(context.Background(), testNow.Add(-time.Hour), testNow)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "AI agents ship", items[0].Title)
	assert.Equal(t, "https://techcrunch.com/2026/02/06/agents/", items[0].URL)
	assert.Equal(t, "2026-02-06T11:30:00Z", items[0].PublishedAt)
	assert.Equal(t, []string{"TechCrunch", "AI"}, items[0].Tags)
}

func TestHTMLSourceClockAfterNowMeansYesterday(t *testing.T) {
	src := NewHTMLSource(HTMLConfig{TimeLayout: "15:04"}, time.Second, "")
	now := time.Date(2026, 2, 6, 0, 10, 0, 0, time.UTC)

	got, ok := src.parseTime("23:55", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 2, 5, 23, 55, 0, 0, time.UTC), got)
}
