package collect

import (
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/news"
)

// fallbackCount is how many raw entries a source keeps when none of its
// timestamps parse.
const fallbackCount = 2

var (
	paywallText = regexp.MustCompile(`(?i)订阅|会员|付费|Premium|Subscribe|Members[- ]Only|Paywall|收费|收费阅读`)
	paywallURL  = regexp.MustCompile(`(?i)/member/|/premium/|/subscription/|/paywall/|wallstreetcn\.com/member/`)
)

// IsPaywalled reports whether an item looks like subscriber-only content.
func IsPaywalled(item news.Item) bool {
	if paywallText.MatchString(item.Title + " " + item.Body) {
		return true
	}
	return item.URL != "" && paywallURL.MatchString(item.URL)
}

// FilterPaywalled drops subscriber-only items.
func FilterPaywalled(items []news.Item) []news.Item {
	out := items[:0:0]
	for _, it := range items {
		if !IsPaywalled(it) {
			out = append(out, it)
		}
	}
	return out
}

// InWindow reports whether t falls in [end-window, end].
func InWindow(t, end time.Time, window time.Duration) bool {
	age := end.Sub(t)
	return age >= 0 && age <= window
}

// FilterWindow keeps items whose parsed timestamp lies in [start, end].
// Items without a parsable timestamp are dropped.
func FilterWindow(items []news.Item, start, end time.Time) []news.Item {
	out := items[:0:0]
	for _, it := range items {
		pub, ok := it.Published()
		if ok && InWindow(pub, end, end.Sub(start)) {
			out = append(out, it)
		}
	}
	return out
}

// Dedupe keeps the first item per key. Items with an empty key are dropped.
func Dedupe(items []news.Item) []news.Item {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, it := range items {
		key := it.Key()
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

// finish turns raw adapter output into the items a source returns:
// timestamps normalized to RFC3339 UTC, window applied, paywalled and
// duplicate items removed.
//
// When not a single timestamp parses, the first two raw items are kept and
// stamped with now so a feed with a broken date format still contributes.
func finish(source string, raw []news.Item, start, end, now time.Time) []news.Item {
	parsed := make([]news.Item, 0, len(raw))
	for _, it := range raw {
		if t, ok := it.Published(); ok {
			it.PublishedAt = news.FormatTime(t)
			parsed = append(parsed, it)
		}
	}

	var items []news.Item
	if len(parsed) == 0 && len(raw) > 0 {
		n := min(fallbackCount, len(raw))
		log.Warn().Str("source", source).Int("entries", len(raw)).
			Msgf("No parsable timestamps, keeping first %d entries", n)
		items = make([]news.Item, n)
		copy(items, raw[:n])
		for i := range items {
			items[i].PublishedAt = news.FormatTime(now)
		}
	} else {
		items = FilterWindow(parsed, start, end)
	}

	items = FilterPaywalled(items)
	return Dedupe(items)
}
