package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/briefcast/internal/brief"
	"github.com/TobiSchelling/briefcast/internal/catalog"
	"github.com/TobiSchelling/briefcast/internal/collect"
	"github.com/TobiSchelling/briefcast/internal/config"
	"github.com/TobiSchelling/briefcast/internal/database"
	"github.com/TobiSchelling/briefcast/internal/dedup"
	"github.com/TobiSchelling/briefcast/internal/fetch"
	"github.com/TobiSchelling/briefcast/internal/llm"
	"github.com/TobiSchelling/briefcast/internal/news"
	"github.com/TobiSchelling/briefcast/internal/publish"
	"github.com/TobiSchelling/briefcast/internal/storage"
	"github.com/TobiSchelling/briefcast/internal/tts"
)

const steps = 7

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps     []StepResult
	Collected int
	Briefs    int
	Published int
	Entries   int
}

// Outcome converts the result into a run ledger record. The status is left
// for the ledger to derive from err.
func (r *Result) Outcome(err error) database.Outcome {
	return database.Outcome{
		Collected: r.Collected,
		Briefs:    r.Briefs,
		Published: r.Published,
		Entries:   r.Entries,
		Err:       err,
	}
}

// Pipeline runs collect, enrich, dedup, brief, filter, synthesize and
// publish in order.
type Pipeline struct {
	collector  *collect.Collector
	enricher   *fetch.Enricher
	deduper    *dedup.Deduper
	generator  *brief.Generator
	catalog    *catalog.Store
	synth      *tts.Synthesizer
	publisher  *publish.Publisher
	scratchDir string
}

// New creates a pipeline from config. The enricher is skipped when fetching
// is disabled.
func New(cfg *config.Config, provider llm.Provider, engine tts.Engine, audio, text storage.Store) *Pipeline {
	pc := cfg.Pipeline
	cat := catalog.NewStore(text, cfg.Storage.CatalogKey, cfg.Storage.DetailPrefix)

	p := &Pipeline{
		collector:  collect.NewCollector(cfg),
		deduper:    dedup.NewDeduper(provider, pc.Dedup),
		generator:  brief.NewGenerator(provider, pc.Language, pc.MaxBriefChars, pc.Concurrency),
		catalog:    cat,
		synth:      tts.NewSynthesizer(engine, cfg.GetScratchDir(), cfg.TTS.MaxChars, pc.Concurrency),
		publisher:  publish.NewPublisher(audio, cat, pc.Concurrency),
		scratchDir: cfg.GetScratchDir(),
	}
	if cfg.Fetch.Enabled {
		p.enricher = fetch.NewEnricher(cfg.Fetch.Timeout, cfg.Fetch.MinBodyChars, cfg.Sources.UserAgent)
	}
	return p
}

// Catalog returns the catalog the pipeline publishes to.
func (p *Pipeline) Catalog() *catalog.Store {
	return p.catalog
}

// Run executes one pass. A pass that finds nothing new ends early without
// touching storage. The only error is a catalog that cannot be read or
// written; per-item failures are logged and counted.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	r := &Result{}

	// Step 1: Collect
	items, step := p.runCollect(ctx)
	r.Steps = append(r.Steps, step)
	r.Collected = len(items)
	if len(items) == 0 {
		log.Info().Msg("No news collected, nothing to do")
		return r, nil
	}

	// Step 2: Enrich
	items, step = p.runEnrich(ctx, items)
	r.Steps = append(r.Steps, step)

	// Step 3: Dedup
	items, step = p.runDedup(ctx, items)
	r.Steps = append(r.Steps, step)

	// Step 4: Brief
	briefs, step := p.runBrief(ctx, items)
	r.Steps = append(r.Steps, step)
	r.Briefs = len(briefs)
	if len(briefs) == 0 {
		return r, nil
	}

	// Step 5: Filter
	briefs, step = p.runFilter(ctx, briefs)
	r.Steps = append(r.Steps, step)
	if len(briefs) == 0 {
		log.Info().Msg("Every brief is already published")
		return r, nil
	}

	// Step 6: Synthesize
	synthesized, step := p.runSynthesize(ctx, briefs)
	r.Steps = append(r.Steps, step)
	if len(synthesized) == 0 {
		return r, nil
	}

	// Step 7: Publish
	pub, step := p.runPublish(ctx, synthesized)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r, step.Err
	}
	r.Published = pub.Uploaded
	r.Entries = pub.Entries
	return r, nil
}

// DryRun collects and reports what a pass would work on without calling
// the model, the speech engine or writing anything.
func (p *Pipeline) DryRun(ctx context.Context) *Result {
	r := &Result{}

	items, step := p.runCollect(ctx)
	step.Summary = "[dry-run] " + step.Summary
	r.Steps = append(r.Steps, step)
	r.Collected = len(items)

	existing, err := p.catalog.Load(ctx)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Filter", Err: err})
		return r
	}
	published := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		published[e.Key()] = struct{}{}
	}

	fresh := 0
	for _, it := range items {
		b := news.Brief{Title: it.Title, URL: it.URL}
		if _, ok := published[b.Key()]; !ok {
			fresh++
		}
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Filter",
		Summary: fmt.Sprintf("[dry-run] %d of %d items not in the catalog (%d entries)", fresh, len(items), len(existing)),
	})
	return r
}

func (p *Pipeline) runCollect(ctx context.Context) ([]news.Item, StepResult) {
	log.Info().Msgf("Step 1/%d: Collecting news", steps)
	cr := p.collector.Collect(ctx)
	summary := fmt.Sprintf("%d items from %d sources (%d duplicates)", len(cr.Items), len(cr.Sources), cr.Duplicates)
	if len(cr.Failed) > 0 {
		summary += fmt.Sprintf(", %d sources failed", len(cr.Failed))
	}
	return cr.Items, StepResult{Name: "Collect", Summary: summary}
}

func (p *Pipeline) runEnrich(ctx context.Context, items []news.Item) ([]news.Item, StepResult) {
	log.Info().Msgf("Step 2/%d: Enriching thin items", steps)
	if p.enricher == nil {
		return items, StepResult{Name: "Enrich", Summary: "disabled"}
	}
	out, fr := p.enricher.Enrich(ctx, items)
	return out, StepResult{
		Name:    "Enrich",
		Summary: fmt.Sprintf("%d fetched, %d failed, %d skipped", fr.Fetched, fr.Failed, fr.Skipped),
	}
}

func (p *Pipeline) runDedup(ctx context.Context, items []news.Item) ([]news.Item, StepResult) {
	log.Info().Msgf("Step 3/%d: Removing duplicate stories", steps)
	out := p.deduper.Dedupe(ctx, items)
	return out, StepResult{
		Name:    "Dedup",
		Summary: fmt.Sprintf("%d of %d items kept", len(out), len(items)),
	}
}

func (p *Pipeline) runBrief(ctx context.Context, items []news.Item) ([]news.Brief, StepResult) {
	log.Info().Msgf("Step 4/%d: Writing briefs", steps)
	briefs := p.generator.GenerateAll(ctx, items)
	return briefs, StepResult{
		Name:    "Brief",
		Summary: fmt.Sprintf("%d of %d briefs written", len(briefs), len(items)),
	}
}

func (p *Pipeline) runFilter(ctx context.Context, briefs []news.Brief) ([]news.Brief, StepResult) {
	log.Info().Msgf("Step 5/%d: Skipping published briefs", steps)
	fresh := p.catalog.FilterNew(ctx, briefs)
	return fresh, StepResult{
		Name:    "Filter",
		Summary: fmt.Sprintf("%d new, %d already published", len(fresh), len(briefs)-len(fresh)),
	}
}

func (p *Pipeline) runSynthesize(ctx context.Context, briefs []news.Brief) ([]tts.Synthesized, StepResult) {
	log.Info().Msgf("Step 6/%d: Synthesizing audio", steps)
	out := p.synth.SynthesizeAll(ctx, briefs)
	return out, StepResult{
		Name:    "Synthesize",
		Summary: fmt.Sprintf("%d of %d briefs synthesized", len(out), len(briefs)),
	}
}

func (p *Pipeline) runPublish(ctx context.Context, synthesized []tts.Synthesized) (*publish.Result, StepResult) {
	log.Info().Msgf("Step 7/%d: Publishing", steps)
	items := make([]publish.Item, len(synthesized))
	for i, s := range synthesized {
		items[i] = publish.Item(s)
	}

	pr, err := p.publisher.Publish(ctx, items)
	if n := publish.SweepScratch(p.scratchDir); n > 0 {
		log.Info().Int("files", n).Msg("Removed leftover scratch audio")
	}
	if err != nil {
		return nil, StepResult{Name: "Publish", Err: fmt.Errorf("publishing catalog: %w", err)}
	}
	return pr, StepResult{
		Name: "Publish",
		Summary: fmt.Sprintf("%d uploaded, %d failed, catalog has %d entries",
			pr.Uploaded, pr.UploadFailed, pr.Entries),
	}
}
