package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/briefcast/internal/news"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

const catalogCacheKey = "catalog"

// CatalogReader loads the published catalog.
type CatalogReader interface {
	Load(ctx context.Context) ([]news.Entry, error)
}

// Options configures the listing server.
type Options struct {
	Title    string
	Location *time.Location
	CacheTTL time.Duration
	// IntroURL returns the public URL of the intro clip for a date, or "".
	IntroURL func(now time.Time) string
}

// Server is the HTTP server for listing and playing briefs.
type Server struct {
	catalog CatalogReader
	opts    Options
	cache   *expirable.LRU[string, []news.Entry]
	pages   map[string]*template.Template
	mux     *http.ServeMux
	now     func() time.Time
}

// New creates a new Server.
func New(catalog CatalogReader, opts Options) (*Server, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Title == "" {
		opts.Title = "briefcast"
	}

	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"localTime": func(e news.Entry) string {
			t, ok := e.Published()
			if !ok {
				return e.PublishedAt
			}
			return t.In(opts.Location).Format("2006-01-02 15:04")
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "brief.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		catalog: catalog,
		opts:    opts,
		cache:   expirable.NewLRU[string, []news.Entry](1, nil, opts.CacheTTL),
		pages:   pages,
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/brief/", s.handleBrief)
	s.mux.HandleFunc("/catalog.json", s.handleCatalog)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// entries returns the catalog, served from cache while fresh. A failed load
// is not cached.
func (s *Server) entries(ctx context.Context) ([]news.Entry, error) {
	if e, ok := s.cache.Get(catalogCacheKey); ok {
		return e, nil
	}
	e, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Add(catalogCacheKey, e)
	return e, nil
}

// Group splits entries into those published on now's local calendar date
// and the rest. Order within each group is kept.
func Group(entries []news.Entry, now time.Time, loc *time.Location) (today, earlier []news.Entry) {
	y, m, d := now.In(loc).Date()
	for _, e := range entries {
		if t, ok := e.Published(); ok {
			ty, tm, td := t.In(loc).Date()
			if ty == y && tm == m && td == d {
				today = append(today, e)
				continue
			}
		}
		earlier = append(earlier, e)
	}
	return today, earlier
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	entries, err := s.entries(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Loading catalog")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	now := s.now()
	today, earlier := Group(entries, now, s.opts.Location)
	intro := ""
	if s.opts.IntroURL != nil && len(today) > 0 {
		intro = s.opts.IntroURL(now)
	}

	s.render(w, "index.html", map[string]any{
		"Title":    s.opts.Title,
		"Today":    today,
		"Earlier":  earlier,
		"IntroURL": intro,
	})
}

func (s *Server) handleBrief(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/brief/")
	if id == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	entries, err := s.entries(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Loading catalog")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	for _, e := range entries {
		if e.ID == id {
			s.render(w, "brief.html", map[string]any{
				"Title": s.opts.Title,
				"Entry": e,
			})
			return
		}
	}
	http.NotFound(w, r)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.entries(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Loading catalog")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []news.Entry{}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		log.Debug().Err(err).Msg("Writing catalog response")
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Error().Str("template", name).Msg("Template not found")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("Rendering template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on addr and shuts it down when ctx is done.
func Serve(ctx context.Context, catalog CatalogReader, addr string, opts Options) error {
	srv, err := New(catalog, opts)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Server listening on http://%s", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
