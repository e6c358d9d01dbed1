// Package catalog reads and writes the published brief catalog, a single
// JSON array of entries kept in the text bucket.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/news"
	"github.com/TobiSchelling/briefcast/internal/storage"
)

// ErrCorrupt is returned when the catalog exists but is not a JSON array of
// entries.
var ErrCorrupt = errors.New("catalog is corrupt")

// Store is the catalog document and its per-item detail blobs.
type Store struct {
	text         storage.Store
	key          string
	detailPrefix string
}

// NewStore creates a catalog store on top of the text bucket.
func NewStore(text storage.Store, key, detailPrefix string) *Store {
	if key == "" {
		key = "briefs.json"
	}
	if detailPrefix == "" {
		detailPrefix = "briefs/"
	}
	return &Store{text: text, key: key, detailPrefix: detailPrefix}
}

// Key returns the object key of the catalog document.
func (s *Store) Key() string { return s.key }

// URL returns the public URL of the catalog document.
func (s *Store) URL() string { return s.text.URL(s.key) }

// Load reads the catalog. A missing catalog returns nil entries and no error.
// Transport failures are returned as is; an unparsable document returns
// ErrCorrupt.
func (s *Store) Load(ctx context.Context) ([]news.Entry, error) {
	data, err := s.text.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var entries []news.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return entries, nil
}

// Save replaces the catalog document.
func (s *Store) Save(ctx context.Context, entries []news.Entry) error {
	if entries == nil {
		entries = []news.Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	if _, err := s.text.Put(ctx, s.key, data, "application/json; charset=utf-8"); err != nil {
		return fmt.Errorf("writing catalog: %w", err)
	}
	return nil
}

// DetailKey returns the object key of the detail blob for an entry id.
func (s *Store) DetailKey(id string) string {
	return s.detailPrefix + id + ".json"
}

// SaveDetail writes the per-item detail blob and returns its key.
func (s *Store) SaveDetail(ctx context.Context, e news.Entry) (string, error) {
	key := s.DetailKey(e.ID)
	e.DetailPath = key
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding detail: %w", err)
	}
	if _, err := s.text.Put(ctx, key, data, "application/json; charset=utf-8"); err != nil {
		return "", fmt.Errorf("writing detail %s: %w", key, err)
	}
	return key, nil
}

// LoadDetails reads every loose per-item blob under the detail prefix.
// Unreadable blobs are skipped.
func (s *Store) LoadDetails(ctx context.Context) ([]news.Entry, error) {
	keys, err := s.text.List(ctx, s.detailPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing details: %w", err)
	}

	var entries []news.Entry
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		data, err := s.text.Get(ctx, key)
		if err != nil {
			log.Debug().Err(err).Str("key", key).Msg("Skipping unreadable detail")
			continue
		}
		var e news.Entry
		if err := json.Unmarshal(data, &e); err != nil || e.Key() == "" {
			log.Debug().Str("key", key).Msg("Skipping malformed detail")
			continue
		}
		if e.DetailPath == "" {
			e.DetailPath = key
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteDetail removes a detail blob.
func (s *Store) DeleteDetail(ctx context.Context, key string) error {
	return s.text.Delete(ctx, key)
}

// FilterNew drops briefs that are already in the catalog. If the catalog
// cannot be read every brief is treated as new.
func (s *Store) FilterNew(ctx context.Context, briefs []news.Brief) []news.Brief {
	existing, err := s.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Catalog unavailable, treating all briefs as new")
		return briefs
	}

	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[e.Key()] = struct{}{}
	}

	var out []news.Brief
	for _, b := range briefs {
		if _, ok := seen[b.Key()]; !ok {
			out = append(out, b)
		}
	}
	log.Info().Int("in", len(briefs)).Int("new", len(out)).Msg("Existing-work filter complete")
	return out
}

// Merge combines entry lists into one list with a single entry per key. Lists
// are applied in order and a later entry replaces an earlier one with the
// same key. The result keeps first-seen key order; call Sort afterwards.
func Merge(lists ...[]news.Entry) []news.Entry {
	index := make(map[string]int)
	var out []news.Entry
	for _, list := range lists {
		for _, e := range list {
			k := e.Key()
			if k == "" {
				continue
			}
			if i, ok := index[k]; ok {
				out[i] = e
				continue
			}
			index[k] = len(out)
			out = append(out, e)
		}
	}
	return out
}

// Sort orders entries newest first. Entries whose time cannot be parsed go
// last. Ties keep their relative order.
func Sort(entries []news.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ti, okI := entries[i].Published()
		tj, okJ := entries[j].Published()
		switch {
		case okI && okJ:
			return ti.After(tj)
		case okI:
			return true
		default:
			return false
		}
	})
}
