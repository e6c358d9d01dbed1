// Package retention removes catalog entries past the retention period along
// with their audio and detail objects.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/catalog"
	"github.com/TobiSchelling/briefcast/internal/metrics"
	"github.com/TobiSchelling/briefcast/internal/news"
	"github.com/TobiSchelling/briefcast/internal/storage"
)

// Result holds the results of a cleanup.
type Result struct {
	Expired       int
	Kept          int
	ObjectsFailed int
	Written       bool
}

// Cleaner expires old catalog entries.
type Cleaner struct {
	catalog *catalog.Store
	audio   storage.Store
	now     func() time.Time
}

// NewCleaner creates a cleaner.
func NewCleaner(cat *catalog.Store, audio storage.Store) *Cleaner {
	return &Cleaner{catalog: cat, audio: audio, now: time.Now}
}

// Cleanup drops entries published more than days ago. Entries whose time
// cannot be parsed are kept. The catalog is only rewritten when something
// expired.
func (c *Cleaner) Cleanup(ctx context.Context, days int) (*Result, error) {
	if days < 1 {
		return nil, fmt.Errorf("retention days must be at least 1, got %d", days)
	}

	entries, err := c.catalog.Load(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := c.now().Add(-time.Duration(days) * 24 * time.Hour)
	r := &Result{}
	var kept []news.Entry
	for _, e := range entries {
		if t, ok := e.Published(); !ok || !t.Before(cutoff) {
			kept = append(kept, e)
			continue
		}
		// A detail left behind would bring the entry back on the next
		// rebuild, so the entry stays until its detail is gone.
		if !c.remove(ctx, e, r) {
			kept = append(kept, e)
			continue
		}
		r.Expired++
	}
	r.Kept = len(kept)

	log.Info().Int("expired", r.Expired).Int("failed", r.ObjectsFailed).Time("cutoff", cutoff).Msg("Retention scan complete")
	if r.Expired == 0 {
		return r, nil
	}

	if err := c.catalog.Save(ctx, kept); err != nil {
		return r, err
	}
	r.Written = true
	metrics.CatalogEntries.Set(float64(len(kept)))
	return r, nil
}

// remove deletes the detail and then the audio of an expired entry. It
// reports whether the entry may be dropped from the catalog.
func (c *Cleaner) remove(ctx context.Context, e news.Entry, r *Result) bool {
	if e.DetailPath != "" {
		if err := c.catalog.DeleteDetail(ctx, e.DetailPath); err != nil {
			r.ObjectsFailed++
			log.Warn().Err(err).Str("id", e.ID).Msg("Could not delete detail, keeping entry")
			return false
		}
	}
	if e.AudioURL != "" {
		if err := c.audio.Delete(ctx, storage.KeyFromURL(e.AudioURL)); err != nil {
			r.ObjectsFailed++
			log.Warn().Err(err).Str("id", e.ID).Msg("Could not delete audio")
		}
	}
	return true
}
