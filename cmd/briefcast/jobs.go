package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/briefcast/internal/catalog"
	"github.com/TobiSchelling/briefcast/internal/config"
	"github.com/TobiSchelling/briefcast/internal/database"
	"github.com/TobiSchelling/briefcast/internal/intro"
	"github.com/TobiSchelling/briefcast/internal/llm"
	"github.com/TobiSchelling/briefcast/internal/pipeline"
	"github.com/TobiSchelling/briefcast/internal/retention"
	"github.com/TobiSchelling/briefcast/internal/schedule"
	"github.com/TobiSchelling/briefcast/internal/server"
	"github.com/TobiSchelling/briefcast/internal/storage"
	"github.com/TobiSchelling/briefcast/internal/tts"
)

// stack is everything the jobs share: the two buckets, the catalog in the
// text bucket and the speech engine.
type stack struct {
	audio   storage.Store
	text    storage.Store
	catalog *catalog.Store
	engine  tts.Engine
}

// openStack opens storage. The speech engine is only required when
// needEngine is set.
func openStack(needEngine bool) (*stack, error) {
	audio, text, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	s := &stack{
		audio:   audio,
		text:    text,
		catalog: catalog.NewStore(text, cfg.Storage.CatalogKey, cfg.Storage.DetailPrefix),
	}
	if needEngine {
		engine := tts.NewMiniMaxEngine(cfg.TTS, cfg.Secrets.MiniMaxAPIKey, cfg.Secrets.MiniMaxGroupID)
		if !engine.IsConfigured() {
			return nil, errors.New("MINIMAX_API_KEY is not set")
		}
		s.engine = engine
	}
	return s, nil
}

func (s *stack) newPipeline() (*pipeline.Pipeline, error) {
	provider, err := llm.CreateProvider(cfg)
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg, provider, s.engine, s.audio, s.text), nil
}

func (s *stack) announcer() (*intro.Announcer, error) {
	return intro.NewAnnouncer(s.engine, s.audio, cfg.Intro.Template, cfg.Intro.Program,
		config.Location(cfg.Intro.TimeZone))
}

func pipelineJob(p *pipeline.Pipeline, last **pipeline.Result) schedule.Job {
	return func(ctx context.Context) database.Outcome {
		r, err := p.Run(ctx)
		if last != nil {
			*last = r
		}
		return r.Outcome(err)
	}
}

func cleanupJob(c *retention.Cleaner, days int) schedule.Job {
	return func(ctx context.Context) database.Outcome {
		r, err := c.Cleanup(ctx, days)
		if err != nil {
			return database.Outcome{Err: err}
		}
		return database.Outcome{Entries: r.Kept}
	}
}

func introJob(a *intro.Announcer) schedule.Job {
	return func(ctx context.Context) database.Outcome {
		if _, err := a.Announce(ctx, time.Now()); err != nil {
			return database.Outcome{Err: err}
		}
		return database.Outcome{Published: 1}
	}
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pass: collect -> enrich -> dedup -> brief -> filter -> synthesize -> publish",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if dryRun {
			st, err := openStack(false)
			if err != nil {
				return err
			}
			p := pipeline.New(cfg, nil, nil, st.audio, st.text)
			printSteps(p.DryRun(ctx))
			return nil
		}

		st, err := openStack(true)
		if err != nil {
			return err
		}
		p, err := st.newPipeline()
		if err != nil {
			return err
		}

		guard, closeDB, err := withGuard()
		if err != nil {
			return err
		}
		defer closeDB()

		var result *pipeline.Result
		_, err = guard.Locked(ctx, "run", pipelineJob(p, &result))
		if errors.Is(err, schedule.ErrLocked) {
			fmt.Println("Another job is publishing, try again later.")
			return nil
		}
		if result != nil {
			printSteps(result)
		}
		if err != nil {
			return err
		}

		fmt.Printf("\nPipeline complete! Catalog: %s\n", st.catalog.URL())
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

func printSteps(r *pipeline.Result) {
	for i, step := range r.Steps {
		fmt.Printf("\nStep %d: %s\n", i+1, step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- cleanup command ---

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove catalog entries and audio older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		days := cleanupDays
		if days == 0 {
			days = cfg.Retention.Days
		}

		st, err := openStack(false)
		if err != nil {
			return err
		}
		guard, closeDB, err := withGuard()
		if err != nil {
			return err
		}
		defer closeDB()

		out, err := guard.Locked(cmd.Context(), "cleanup", cleanupJob(retention.NewCleaner(st.catalog, st.audio), days))
		if errors.Is(err, schedule.ErrLocked) {
			fmt.Println("Another job is publishing, try again later.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Cleanup complete: %d entries kept (retention %d days)\n", out.Entries, days)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Retention window in days (default from config)")
}

// --- intro command ---

var introCmd = &cobra.Command{
	Use:   "intro",
	Short: "Synthesize and upload today's intro clip",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStack(true)
		if err != nil {
			return err
		}
		a, err := st.announcer()
		if err != nil {
			return err
		}
		guard, closeDB, err := withGuard()
		if err != nil {
			return err
		}
		defer closeDB()

		if _, err := guard.Record(cmd.Context(), "intro", introJob(a)); err != nil {
			return err
		}
		fmt.Printf("Intro published: %s\n", a.URL(time.Now()))
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web player",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStack(false)
		if err != nil {
			return err
		}
		opts, err := st.serverOptions()
		if err != nil {
			return err
		}

		addr := listenAddr(servePort)
		fmt.Printf("Starting server at http://%s\n", addr)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(cmd.Context(), st.catalog, addr, opts)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func (s *stack) serverOptions() (server.Options, error) {
	a, err := s.announcer()
	if err != nil {
		return server.Options{}, err
	}
	return server.Options{
		Title:    cfg.Intro.Program,
		Location: config.Location(cfg.Server.TimeZone),
		CacheTTL: cfg.Server.CacheTTL,
		IntroURL: a.URL,
	}, nil
}

func listenAddr(port int) string {
	if port == 0 {
		port = cfg.Server.Port
	}
	return net.JoinHostPort(cfg.Server.Host, strconv.Itoa(port))
}

// --- daemon command ---

var (
	daemonNoServe bool
	daemonNow     bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled jobs and the web player until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStack(true)
		if err != nil {
			return err
		}
		p, err := st.newPipeline()
		if err != nil {
			return err
		}
		a, err := st.announcer()
		if err != nil {
			return err
		}
		guard, closeDB, err := withGuard()
		if err != nil {
			return err
		}
		defer closeDB()

		sched := schedule.New(guard, config.Location(cfg.Schedule.TimeZone))
		if err := sched.Add(cfg.Schedule.Run, "run", true, pipelineJob(p, nil)); err != nil {
			return err
		}
		cleaner := retention.NewCleaner(st.catalog, st.audio)
		if err := sched.Add(cfg.Schedule.Cleanup, "cleanup", true, cleanupJob(cleaner, cfg.Retention.Days)); err != nil {
			return err
		}
		if err := sched.Add(cfg.Schedule.Intro, "intro", false, introJob(a)); err != nil {
			return err
		}

		opts, err := st.serverOptions()
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return sched.Run(ctx) })

		if !daemonNoServe {
			addr := listenAddr(0)
			g.Go(func() error { return server.Serve(ctx, st.catalog, addr, opts) })
		}

		if daemonNow {
			g.Go(func() error {
				if _, err := guard.Locked(ctx, "run", pipelineJob(p, nil)); err != nil && !errors.Is(err, schedule.ErrLocked) {
					log.Error().Err(err).Msg("Startup run failed")
				}
				return nil
			})
		}

		log.Info().Str("time_zone", cfg.Schedule.TimeZone).Int("jobs", sched.Len()).Msg("Daemon running")
		return g.Wait()
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonNoServe, "no-serve", false, "Do not start the web player")
	daemonCmd.Flags().BoolVar(&daemonNow, "now", false, "Run the pipeline once at startup")
}
