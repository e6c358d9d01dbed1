package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/briefcast/internal/news"
)

// fakeCatalog counts loads.
type fakeCatalog struct {
	entries []news.Entry
	err     error
	loads   atomic.Int32
}

func (f *fakeCatalog) Load(context.Context) ([]news.Entry, error) {
	f.loads.Add(1)
	return f.entries, f.err
}

var shanghai = time.FixedZone("CST", 8*3600)

// 2026-02-06 20:00 in Shanghai.
var testNow = time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)

func sampleEntries() []news.Entry {
	return []news.Entry{
		{ID: "today_1", Title: "美联储维持利率不变", Brief: "**重点** 利率不变。", Category: "财经/商业",
			Source: "CNBC", PublishedAt: "2026-02-06T11:00:00Z", AudioURL: "https://audio.example.com/today_1.mp3",
			URL: "https://cnbc.com/fed"},
		// 2026-02-06 00:30 Shanghai, still today locally.
		{ID: "today_2", Title: "凌晨消息", PublishedAt: "2026-02-05T16:30:00Z", AudioURL: "https://audio.example.com/today_2.mp3"},
		{ID: "old_1", Title: "昨天的新闻", PublishedAt: "2026-02-05T10:00:00Z", AudioURL: "https://audio.example.com/old_1.mp3"},
		{ID: "bad", Title: "无日期", PublishedAt: "unknown"},
	}
}

func newTestServer(t *testing.T, cat CatalogReader, opts Options) *Server {
	t.Helper()
	if opts.Location == nil {
		opts.Location = shanghai
	}
	srv, err := New(cat, opts)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	srv.now = func() time.Time { return testNow }
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func TestGroupByLocalDate(t *testing.T) {
	today, earlier := Group(sampleEntries(), testNow, shanghai)
	if len(today) != 2 || today[0].ID != "today_1" || today[1].ID != "today_2" {
		t.Errorf("unexpected today group: %+v", today)
	}
	if len(earlier) != 2 || earlier[0].ID != "old_1" || earlier[1].ID != "bad" {
		t.Errorf("unexpected earlier group: %+v", earlier)
	}
}

func TestIndexRoute(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{entries: sampleEntries()}, Options{
		Title:    "摸鱼经济学",
		IntroURL: func(now time.Time) string { return "https://audio.example.com/daily-intro-20260206.mp3" },
	})

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"摸鱼经济学", "今日简报", "往期简报", "/brief/today_1", "today_2.mp3", "daily-intro-20260206.mp3", "2026-02-06 19:00"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in response body", want)
		}
	}
	if strings.Index(body, "today_2") > strings.Index(body, "old_1") {
		t.Error("expected today's entries before earlier ones")
	}
}

func TestIndexEmptyCatalog(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{}, Options{})
	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "今天还没有简报") {
		t.Error("expected empty state")
	}
}

func TestIndexCatalogError(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{err: errors.New("bucket unreachable")}, Options{})
	if rec := get(t, srv, "/"); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestUnknownPath(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{}, Options{})
	if rec := get(t, srv, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestBriefRoute(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{entries: sampleEntries()}, Options{})

	rec := get(t, srv, "/brief/today_1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<strong>重点</strong>") {
		t.Error("expected brief text rendered as markdown")
	}
	if !strings.Contains(body, "https://cnbc.com/fed") {
		t.Error("expected link to the original article")
	}

	if rec := get(t, srv, "/brief/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown id, got %d", rec.Code)
	}
}

func TestCatalogRoute(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{entries: sampleEntries()}, Options{})

	rec := get(t, srv, "/catalog.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []news.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(got) != 4 || got[0].AudioURL != "https://audio.example.com/today_1.mp3" {
		t.Errorf("unexpected catalog: %+v", got)
	}
}

func TestCatalogIsCached(t *testing.T) {
	cat := &fakeCatalog{entries: sampleEntries()}
	srv := newTestServer(t, cat, Options{CacheTTL: time.Minute})

	get(t, srv, "/")
	get(t, srv, "/catalog.json")
	get(t, srv, "/brief/today_1")

	if n := cat.loads.Load(); n != 1 {
		t.Errorf("expected 1 catalog load, got %d", n)
	}
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{}, Options{})
	rec := get(t, srv, "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestStaticRoute(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{}, Options{})
	rec := get(t, srv, "/static/style.css")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
