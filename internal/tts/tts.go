// Package tts synthesizes briefs into audio files in the scratch directory.
package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/batch"
	"github.com/TobiSchelling/briefcast/internal/metrics"
	"github.com/TobiSchelling/briefcast/internal/news"
)

// MaxChars is the longest text sent to the engine.
const MaxChars = 512

var (
	unspeakable = regexp.MustCompile(`[^\x00-\x7f\x{4e00}-\x{9fa5}，。！？、；：“”‘’（）《》〈〉\s]`)
	slugUnsafe  = regexp.MustCompile(`[^a-zA-Z0-9\x{4e00}-\x{9fa5}]`)
)

// Sanitize drops characters the engine cannot read aloud and truncates to
// limit runes.
func Sanitize(text string, limit int) string {
	text = unspeakable.ReplaceAllString(text, "")
	r := []rune(text)
	if limit > 0 && len(r) > limit {
		return string(r[:limit])
	}
	return text
}

// AudioID returns the object name stem for a brief. The same brief always
// gets the same id.
func AudioID(b news.Brief) string {
	slug := slugUnsafe.ReplaceAllString(b.Title, "_")
	if r := []rune(slug); len(r) > 48 {
		slug = string(r[:48])
	}
	stable := uuid.NewSHA1(uuid.NameSpaceURL, []byte(b.Key())).String()[:8]
	if slug == "" {
		return stable
	}
	return slug + "_" + stable
}

// Synthesizer writes one audio file per brief.
type Synthesizer struct {
	engine      Engine
	scratchDir  string
	maxChars    int
	concurrency int
}

// NewSynthesizer creates a synthesizer writing into scratchDir.
func NewSynthesizer(engine Engine, scratchDir string, maxChars, concurrency int) *Synthesizer {
	if maxChars <= 0 {
		maxChars = MaxChars
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Synthesizer{engine: engine, scratchDir: scratchDir, maxChars: maxChars, concurrency: concurrency}
}

// Synthesize renders one brief and writes it to the scratch directory.
func (s *Synthesizer) Synthesize(ctx context.Context, b news.Brief) (news.Audio, error) {
	text := strings.TrimSpace(Sanitize(b.Text, s.maxChars))
	if text == "" {
		return news.Audio{}, errors.New("nothing to synthesize")
	}

	audio, err := s.engine.Synthesize(ctx, text)
	if err != nil {
		return news.Audio{}, err
	}

	if err := os.MkdirAll(s.scratchDir, 0o755); err != nil {
		return news.Audio{}, fmt.Errorf("creating scratch dir: %w", err)
	}
	id := AudioID(b)
	path := filepath.Join(s.scratchDir, id+"-"+uuid.NewString()+".mp3")
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return news.Audio{}, fmt.Errorf("writing audio: %w", err)
	}
	return news.Audio{ID: id, Path: path}, nil
}

// Synthesized pairs a brief with its audio file.
type Synthesized struct {
	Brief news.Brief
	Audio news.Audio
}

// SynthesizeAll renders briefs with bounded concurrency. Failed briefs are
// logged and dropped for this run.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, briefs []news.Brief) []Synthesized {
	results := batch.Map(ctx, briefs, s.concurrency, func(ctx context.Context, _ int, b news.Brief) (Synthesized, error) {
		a, err := s.Synthesize(ctx, b)
		return Synthesized{Brief: b, Audio: a}, err
	})

	for i, r := range results {
		if r.Err != nil {
			metrics.StageFailures.WithLabelValues("synthesize").Inc()
			log.Warn().Err(r.Err).Str("title", briefs[i].Title).Msg("Synthesis failed")
		}
	}

	out := batch.Values(results)
	metrics.StageItems.WithLabelValues("synthesize").Add(float64(len(out)))
	log.Info().Int("in", len(briefs)).Int("out", len(out)).Msg("Synthesis complete")
	return out
}
