package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/briefcast/internal/news"
)

const articleHTML = `<html><head><title>Rates hold</title></head><body>
<nav>Home | Markets | Tech</nav>
<article>
<h1>Rates hold</h1>
<p>The central bank kept its benchmark rate unchanged on Thursday, citing sticky inflation and a resilient labour market.</p>
<p>Officials signalled that cuts remain possible later this year if price growth continues to cool across services and goods.</p>
<p>Markets had priced a small chance of a surprise move, and bond yields edged higher after the statement was released.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestEnrichFillsThinBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	long := strings.Repeat("already long enough ", 10)
	items := []news.Item{
		{Title: "Rates hold", URL: srv.URL + "/rates", Body: "short"},
		{Title: "Has body", URL: srv.URL + "/other", Body: long},
		{Title: "No URL", Body: ""},
	}

	e := NewEnricher(time.Second, 80, "test")
	out, result := e.Enrich(context.Background(), items)

	if result.Fetched != 1 {
		t.Errorf("expected 1 fetched, got %d", result.Fetched)
	}
	if result.Skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", result.Skipped)
	}
	if !strings.Contains(out[0].Body, "benchmark rate unchanged") {
		t.Errorf("expected extracted article text, got %q", out[0].Body)
	}
	if out[1].Body != long {
		t.Error("expected long body to be untouched")
	}
	if items[0].Body != "short" {
		t.Error("input slice must not be modified")
	}
}

func TestEnrichSkipsFailedDomain(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	items := []news.Item{
		{Title: "A", URL: srv.URL + "/a"},
		{Title: "B", URL: srv.URL + "/b"},
		{Title: "C", URL: srv.URL + "/c"},
	}

	e := NewEnricher(time.Second, 80, "test")
	out, result := e.Enrich(context.Background(), items)

	if calls.Load() != 1 {
		t.Errorf("expected 1 request to failing domain, got %d", calls.Load())
	}
	if result.Failed != 3 {
		t.Errorf("expected 3 failed, got %d", result.Failed)
	}
	if len(out) != 3 {
		t.Errorf("expected items to be kept, got %d", len(out))
	}
}
