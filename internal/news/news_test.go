package news

import (
	"testing"
	"time"
)

func TestItemKeyFallsBackToTitleAndTime(t *testing.T) {
	withURL := Item{URL: "https://a.com/x", Title: "T", PublishedAt: "2026-02-06T10:00:00Z"}
	if withURL.Key() != "https://a.com/x" {
		t.Errorf("expected URL key, got %q", withURL.Key())
	}

	noURL := Item{Title: "T", PublishedAt: "2026-02-06T10:00:00Z"}
	if noURL.Key() != "T2026-02-06T10:00:00Z" {
		t.Errorf("expected title+time key, got %q", noURL.Key())
	}

	if (Item{}).Key() != "" {
		t.Error("expected empty key for empty item")
	}
}

func TestEntryKey(t *testing.T) {
	if (Entry{URL: "u", Title: "t"}).Key() != "u" {
		t.Error("expected URL key")
	}
	if (Entry{Title: "t"}).Key() != "t" {
		t.Error("expected title key")
	}
}

func TestParseTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2026-02-06T10:00:00Z", time.Date(2026, 2, 6, 10, 0, 0, 0, time.UTC), true},
		{"2026-02-06T18:00:00+08:00", time.Date(2026, 2, 6, 10, 0, 0, 0, time.UTC), true},
		{"Fri, 06 Feb 2026 10:00:00 +0000", time.Date(2026, 2, 6, 10, 0, 0, 0, time.UTC), true},
		{"2026-02-06 10:00:00", time.Date(2026, 2, 6, 10, 0, 0, 0, time.UTC), true},
		{"yesterday-ish", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, c := range cases {
		got, ok := ParseTime(c.in)
		if ok != c.ok {
			t.Errorf("ParseTime(%q) ok=%v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && !got.Equal(c.want) {
			t.Errorf("ParseTime(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
