package collect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/briefcast/internal/config"
	"github.com/TobiSchelling/briefcast/internal/news"
)

type mockSource struct {
	name   string
	window time.Duration
	items  []news.Item
	err    error
	calls  atomic.Int32
	start  time.Time
}

func (m *mockSource) Name() string          { return m.name }
func (m *mockSource) Window() time.Duration { return m.window }

func (m *mockSource) Fetch(_ context.Context, start, _ time.Time) ([]news.Item, error) {
	m.calls.Add(1)
	m.start = start
	return m.items, m.err
}

func TestCollectorMergesAndDedupes(t *testing.T) {
	a := &mockSource{name: "A", window: time.Hour, items: []news.Item{
		{Title: "Shared", URL: "https://x.com/1", Source: "A"},
		{Title: "Only A", URL: "https://x.com/2", Source: "A"},
	}}
	b := &mockSource{name: "B", window: 2 * time.Hour, items: []news.Item{
		{Title: "Shared (B)", URL: "https://x.com/1", Source: "B"},
		{Title: "Only B", URL: "https://x.com/3", Source: "B"},
	}}

	c := NewCollectorWithSources(a, b)
	c.now = func() time.Time { return testNow }
	r := c.Collect(context.Background())

	require.Len(t, r.Items, 3)
	assert.Equal(t, "A", r.Items[0].Source, "first occurrence wins in source order")
	assert.Equal(t, []string{"Only A", "Only B"}, []string{r.Items[1].Title, r.Items[2].Title})
	assert.Equal(t, 4, r.TotalFound)
	assert.Equal(t, 1, r.Duplicates)
	assert.Equal(t, map[string]int{"A": 2, "B": 2}, r.Sources)

	assert.Equal(t, testNow.Add(-time.Hour), a.start)
	assert.Equal(t, testNow.Add(-2*time.Hour), b.start)
}

func TestCollectorSurvivesFailingSource(t *testing.T) {
	good := &mockSource{name: "Good", window: time.Hour, items: []news.Item{{Title: "ok", URL: "https://x.com/ok"}}}
	bad := &mockSource{name: "Bad", window: time.Hour, err: errors.New("connection refused")}

	r := NewCollectorWithSources(bad, good).Collect(context.Background())

	require.Len(t, r.Items, 1)
	assert.Equal(t, []string{"Bad"}, r.Failed)
	assert.Equal(t, int32(1), bad.calls.Load())
}

func TestCollectorNoSources(t *testing.T) {
	r := NewCollectorWithSources().Collect(context.Background())
	assert.Empty(t, r.Items)
	assert.Zero(t, r.TotalFound)
}

func TestFallbackReturnsFirstNonEmpty(t *testing.T) {
	rss := &mockSource{name: "rss", window: time.Hour}
	html := &mockSource{name: "html", window: time.Hour, items: []news.Item{{Title: "from html", URL: "https://x.com/h"}}}
	never := &mockSource{name: "never", window: time.Hour}

	f := NewFallback("Site", rss, html, never)
	items, err := f.Fetch(context.Background(), testNow.Add(-time.Hour), testNow)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "from html", items[0].Title)
	assert.Equal(t, int32(0), never.calls.Load())
	assert.Equal(t, "Site", f.Name())
}

func TestFallbackAllFailed(t *testing.T) {
	f := NewFallback("Site",
		&mockSource{name: "a", window: time.Hour, err: errors.New("a down")},
		&mockSource{name: "b", window: 2 * time.Hour, err: errors.New("b down")},
	)
	assert.Equal(t, 2*time.Hour, f.Window())

	_, err := f.Fetch(context.Background(), testNow.Add(-time.Hour), testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a down")
	assert.Contains(t, err.Error(), "b down")
}

func TestFallbackOneFailedOneEmpty(t *testing.T) {
	f := NewFallback("Site",
		&mockSource{name: "a", window: time.Hour, err: errors.New("a down")},
		&mockSource{name: "b", window: time.Hour},
	)
	items, err := f.Fetch(context.Background(), testNow.Add(-time.Hour), testNow)
	assert.NoError(t, err)
	assert.Empty(t, items)
}

func TestSourcesFromDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, config.DefaultConfigYAML, 0o644))
	cfg, err := config.Load(context.Background(), path)
	require.NoError(t, err)
	cfg.Secrets = config.Secrets{GNewsAPIKey: "g"}

	sources := SourcesFromConfig(cfg)
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	// NewsAPI is skipped without a key.
	assert.Equal(t, []string{"CNBC", "WallstreetCN", "TechCrunch", "MIT", "arXiv", "GNews"}, names)
	assert.IsType(t, &Fallback{}, sources[1])
}
