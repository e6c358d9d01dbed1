// Package intro produces the daily spoken introduction clip.
package intro

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/storage"
	"github.com/TobiSchelling/briefcast/internal/tts"
)

var weekdays = [...]string{"日", "一", "二", "三", "四", "五", "六"}

// Fields are the values available to the intro template.
type Fields struct {
	Year    int
	Month   int
	Day     int
	Weekday string
	Program string
}

// Announcer renders, synthesizes and uploads the intro.
type Announcer struct {
	engine  tts.Engine
	audio   storage.Store
	tmpl    *template.Template
	program string
	loc     *time.Location
}

// NewAnnouncer parses the intro template.
func NewAnnouncer(engine tts.Engine, audio storage.Store, tmpl, program string, loc *time.Location) (*Announcer, error) {
	t, err := template.New("intro").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parsing intro template: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Announcer{engine: engine, audio: audio, tmpl: t, program: program, loc: loc}, nil
}

// Text renders the intro for the local date of now.
func (a *Announcer) Text(now time.Time) (string, error) {
	local := now.In(a.loc)
	var sb strings.Builder
	err := a.tmpl.Execute(&sb, Fields{
		Year:    local.Year(),
		Month:   int(local.Month()),
		Day:     local.Day(),
		Weekday: weekdays[local.Weekday()],
		Program: a.program,
	})
	if err != nil {
		return "", fmt.Errorf("rendering intro: %w", err)
	}
	return sb.String(), nil
}

// Key returns the audio object key for the local date of now.
func (a *Announcer) Key(now time.Time) string {
	return "daily-intro-" + now.In(a.loc).Format("20060102") + ".mp3"
}

// URL returns where the clip for the local date of now is published.
func (a *Announcer) URL(now time.Time) string {
	return a.audio.URL(a.Key(now))
}

// Announce synthesizes today's intro and uploads it. It returns the public
// URL of the clip.
func (a *Announcer) Announce(ctx context.Context, now time.Time) (string, error) {
	text, err := a.Text(now)
	if err != nil {
		return "", err
	}

	audio, err := a.engine.Synthesize(ctx, tts.Sanitize(text, tts.MaxChars))
	if err != nil {
		return "", fmt.Errorf("synthesizing intro: %w", err)
	}

	url, err := a.audio.Put(ctx, a.Key(now), audio, "audio/mpeg")
	if err != nil {
		return "", fmt.Errorf("uploading intro: %w", err)
	}
	log.Info().Str("url", url).Str("text", text).Msg("Daily intro published")
	return url, nil
}
