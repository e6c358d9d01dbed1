// Package publish uploads synthesized briefs and folds them into the catalog.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/batch"
	"github.com/TobiSchelling/briefcast/internal/catalog"
	"github.com/TobiSchelling/briefcast/internal/metrics"
	"github.com/TobiSchelling/briefcast/internal/news"
	"github.com/TobiSchelling/briefcast/internal/storage"
)

// Item is a brief with its synthesized audio.
type Item struct {
	Brief news.Brief
	Audio news.Audio
}

// Result holds the results of a publish run.
type Result struct {
	Uploaded     int
	UploadFailed int
	Details      int
	Entries      int
}

// Publisher uploads audio and rewrites the catalog.
type Publisher struct {
	audio       storage.Store
	catalog     *catalog.Store
	concurrency int
}

// NewPublisher creates a publisher.
func NewPublisher(audio storage.Store, cat *catalog.Store, concurrency int) *Publisher {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Publisher{audio: audio, catalog: cat, concurrency: concurrency}
}

// Publish uploads every item's audio, writes detail blobs and replaces the
// catalog with the merge of what is there and the new entries. Only a
// catalog that cannot be read or written is an error.
func (p *Publisher) Publish(ctx context.Context, items []Item) (*Result, error) {
	r := &Result{}

	uploads := batch.Map(ctx, items, p.concurrency, func(ctx context.Context, _ int, it Item) (news.Entry, error) {
		return p.upload(ctx, it)
	})

	var fresh []news.Entry
	for i, u := range uploads {
		if u.Err != nil {
			r.UploadFailed++
			metrics.StageFailures.WithLabelValues("upload").Inc()
			log.Warn().Err(u.Err).Str("title", items[i].Brief.Title).Msg("Audio upload failed")
			continue
		}
		r.Uploaded++

		e := u.Value
		if key, err := p.catalog.SaveDetail(ctx, e); err != nil {
			log.Warn().Err(err).Str("id", e.ID).Msg("Detail write failed, publishing without detail")
		} else {
			e.DetailPath = key
			r.Details++
		}
		fresh = append(fresh, e)
	}
	metrics.StageItems.WithLabelValues("upload").Add(float64(r.Uploaded))

	existing, err := p.catalog.Load(ctx)
	if err != nil {
		if !errors.Is(err, catalog.ErrCorrupt) {
			return r, fmt.Errorf("loading catalog: %w", err)
		}
		log.Warn().Err(err).Msg("Catalog is corrupt, rebuilding from details")
		existing = nil
	}

	details, err := p.catalog.LoadDetails(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not list detail blobs")
	}

	merged := catalog.Merge(existing, details, fresh)
	catalog.Sort(merged)
	if err := p.catalog.Save(ctx, merged); err != nil {
		return r, err
	}
	r.Entries = len(merged)
	metrics.CatalogEntries.Set(float64(len(merged)))

	log.Info().Int("uploaded", r.Uploaded).Int("failed", r.UploadFailed).Int("entries", r.Entries).
		Msg("Publish complete")
	return r, nil
}

func (p *Publisher) upload(ctx context.Context, it Item) (news.Entry, error) {
	data, err := os.ReadFile(it.Audio.Path)
	if err != nil {
		return news.Entry{}, fmt.Errorf("reading audio: %w", err)
	}

	url, err := p.audio.Put(ctx, it.Audio.ID+".mp3", data, "audio/mpeg")
	if err != nil {
		return news.Entry{}, err
	}
	if err := os.Remove(it.Audio.Path); err != nil {
		log.Debug().Err(err).Str("path", it.Audio.Path).Msg("Could not remove scratch file")
	}

	b := it.Brief
	return news.Entry{
		ID:          it.Audio.ID,
		Title:       b.Title,
		Brief:       b.Text,
		Category:    b.Category,
		Source:      b.Source,
		PublishedAt: b.PublishedAt,
		AudioURL:    url,
		URL:         b.URL,
	}, nil
}

// SweepScratch removes every file left in dir. Per-file errors are logged
// and skipped.
func SweepScratch(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.Remove(p); err != nil {
			log.Debug().Err(err).Str("path", p).Msg("Could not sweep scratch file")
			continue
		}
		removed++
	}
	return removed
}
