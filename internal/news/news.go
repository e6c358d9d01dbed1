// Package news holds the records that flow through the briefing pipeline.
package news

import (
	"strings"
	"time"
)

// Item is one article from one source, normalized by a source adapter.
type Item struct {
	Title       string
	Body        string
	Source      string
	PublishedAt string // RFC3339, UTC
	URL         string
	Category    string
	Tags        []string
}

// Key returns the identity of an item within a collection run: the URL,
// or title+timestamp when the URL is missing.
func (i Item) Key() string {
	if i.URL != "" {
		return i.URL
	}
	if i.Title == "" {
		return ""
	}
	return i.Title + i.PublishedAt
}

// Published parses PublishedAt.
func (i Item) Published() (time.Time, bool) {
	return ParseTime(i.PublishedAt)
}

// Brief is an item after the spoken-style rewrite.
type Brief struct {
	Title       string
	Text        string
	Source      string
	PublishedAt string
	URL         string
	Category    string
	Tags        []string
}

// Key mirrors Entry.Key so briefs can be matched against the catalog.
func (b Brief) Key() string {
	if b.URL != "" {
		return b.URL
	}
	return b.Title
}

// Audio is a synthesized brief waiting in the scratch directory.
type Audio struct {
	ID   string
	Path string
}

// Entry is one row of the published catalog. Field names match what the
// player UI reads.
type Entry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Brief       string `json:"brief"`
	Category    string `json:"category,omitempty"`
	Source      string `json:"source,omitempty"`
	PublishedAt string `json:"publishedAt"`
	AudioURL    string `json:"audioUrl"`
	URL         string `json:"url"`
	DetailPath  string `json:"detailPath,omitempty"`
}

// Key is the catalog uniqueness key: source URL, else title.
func (e Entry) Key() string {
	if e.URL != "" {
		return e.URL
	}
	return e.Title
}

// Published parses PublishedAt.
func (e Entry) Published() (time.Time, bool) {
	return ParseTime(e.PublishedAt)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// ParseTime parses the timestamp formats seen in feeds and APIs.
// Values without a zone are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatTime renders t the way PublishedAt is stored.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
