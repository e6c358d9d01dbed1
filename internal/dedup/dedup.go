package dedup

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/llm"
	"github.com/TobiSchelling/briefcast/internal/news"
)

const dedupPrompt = `请帮我对下面的新闻列表做相似内容聚类，去除内容高度重复的项，仅保留每组中最有代表性的一条。请返回去重后新闻的原始标题列表（每行一个标题，不要编号）：
%s`

const maxTokens = 1024

// Deduper drops items that report the same story as another item, using the
// model to pick one representative title per cluster.
type Deduper struct {
	provider llm.Provider
	enabled  bool
}

// NewDeduper creates a new similarity deduplicator.
func NewDeduper(provider llm.Provider, enabled bool) *Deduper {
	return &Deduper{provider: provider, enabled: enabled}
}

// Dedupe returns the items whose titles the model kept. Any failure, empty
// answer or answer that matches nothing returns the input unchanged.
func (d *Deduper) Dedupe(ctx context.Context, items []news.Item) []news.Item {
	if !d.enabled || d.provider == nil || len(items) < 2 {
		return items
	}

	titles := make([]string, len(items))
	for i, item := range items {
		titles[i] = item.Title
	}
	prompt := fmt.Sprintf(dedupPrompt, strings.Join(titles, "\n"))

	answer, err := d.provider.Generate(ctx, prompt, maxTokens)
	if err != nil {
		log.Warn().Err(err).Msg("Similarity dedup failed, keeping all items")
		return items
	}

	keep := make(map[string]struct{})
	for _, line := range llm.ParseLines(answer) {
		keep[line] = struct{}{}
	}

	var out []news.Item
	for _, item := range items {
		if _, ok := keep[strings.TrimSpace(item.Title)]; ok {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		log.Warn().Int("lines", len(keep)).Msg("Similarity dedup matched no titles, keeping all items")
		return items
	}

	log.Info().Int("in", len(items)).Int("out", len(out)).Msg("Similarity dedup complete")
	return out
}
