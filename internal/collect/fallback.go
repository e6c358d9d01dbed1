package collect

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/news"
)

// Fallback tries its members in order and returns the first non-empty
// result, e.g. a site's RSS feed and then its HTML listing page.
type Fallback struct {
	name    string
	members []Source
}

// NewFallback groups sources under one name.
func NewFallback(name string, members ...Source) *Fallback {
	return &Fallback{name: name, members: members}
}

func (f *Fallback) Name() string { return f.name }

// Window is the widest member window.
func (f *Fallback) Window() time.Duration {
	var w time.Duration
	for _, m := range f.members {
		w = max(w, m.Window())
	}
	return w
}

func (f *Fallback) Fetch(ctx context.Context, _, end time.Time) ([]news.Item, error) {
	var errs []error
	for _, m := range f.members {
		items, err := m.Fetch(ctx, end.Add(-m.Window()), end)
		if err != nil {
			log.Debug().Err(err).Str("source", f.name).Str("method", m.Name()).Msg("Fallback member failed")
			errs = append(errs, err)
			continue
		}
		if len(items) > 0 {
			return items, nil
		}
	}
	if len(errs) == len(f.members) {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}
