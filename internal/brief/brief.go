package brief

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/batch"
	"github.com/TobiSchelling/briefcast/internal/llm"
	"github.com/TobiSchelling/briefcast/internal/metrics"
	"github.com/TobiSchelling/briefcast/internal/news"
)

const translatePrompt = `请将下列标题翻译为简洁、自然的%s新闻标题，仅返回翻译结果：
%s`

const rewritePrompt = `你是专业的%[1]s新闻播报文案助手。请将以下新闻内容用%[1]s改写为口语化、适合听播的简报，突出重点，最多500字。
不要出现“以上就是今天的简报，我们下次再见！”、“大家好，今天给大家带来一条新消息。”等开头或收尾语。直接进入新闻本身内容。
标题：%[2]s
内容：%[3]s`

const (
	titleTokens   = 64
	briefTokens   = 500
	maxInputRunes = 4000
)

// Generator turns collected items into spoken-style briefs.
type Generator struct {
	provider    llm.Provider
	language    string
	maxChars    int
	concurrency int
}

// NewGenerator creates a brief generator.
func NewGenerator(provider llm.Provider, language string, maxChars, concurrency int) *Generator {
	if language == "" {
		language = "简体中文"
	}
	if maxChars <= 0 {
		maxChars = 550
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Generator{provider: provider, language: language, maxChars: maxChars, concurrency: concurrency}
}

// Generate translates the item title and rewrites its body into a brief.
func (g *Generator) Generate(ctx context.Context, item news.Item) (*news.Brief, error) {
	title, err := g.provider.Generate(ctx, fmt.Sprintf(translatePrompt, g.language, item.Title), titleTokens)
	if err != nil {
		return nil, fmt.Errorf("translating title: %w", err)
	}
	title = firstLine(title)

	body := item.Body
	if body == "" {
		body = item.Title
	}
	body = truncateRunes(body, maxInputRunes)

	text, err := g.provider.Generate(ctx, fmt.Sprintf(rewritePrompt, g.language, title, body), briefTokens)
	if err != nil {
		return nil, fmt.Errorf("rewriting body: %w", err)
	}

	return &news.Brief{
		Title:       title,
		Text:        truncateRunes(strings.TrimSpace(text), g.maxChars),
		Source:      item.Source,
		PublishedAt: item.PublishedAt,
		URL:         item.URL,
		Category:    item.Category,
		Tags:        item.Tags,
	}, nil
}

// GenerateAll generates briefs with bounded concurrency. Items that fail are
// logged and left out; the order of the rest is kept.
func (g *Generator) GenerateAll(ctx context.Context, items []news.Item) []news.Brief {
	results := batch.Map(ctx, items, g.concurrency, func(ctx context.Context, i int, item news.Item) (news.Brief, error) {
		b, err := g.Generate(ctx, item)
		if err != nil {
			return news.Brief{}, err
		}
		log.Debug().Int("n", i+1).Str("title", b.Title).Msg("Brief generated")
		return *b, nil
	})

	for i, r := range results {
		if r.Err != nil {
			metrics.StageFailures.WithLabelValues("brief").Inc()
			log.Warn().Err(r.Err).Str("title", items[i].Title).Msg("Brief generation failed")
		}
	}

	briefs := batch.Values(results)
	metrics.StageItems.WithLabelValues("brief").Add(float64(len(briefs)))
	log.Info().Int("in", len(items)).Int("out", len(briefs)).Msg("Brief generation complete")
	return briefs
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(strings.TrimSpace(s), `"“”《》`)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
