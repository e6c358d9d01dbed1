package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/briefcast/internal/catalog"
	"github.com/TobiSchelling/briefcast/internal/collect"
	"github.com/TobiSchelling/briefcast/internal/config"
	"github.com/TobiSchelling/briefcast/internal/database"
	"github.com/TobiSchelling/briefcast/internal/logging"
	"github.com/TobiSchelling/briefcast/internal/schedule"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "briefcast",
	Short:   "Spoken news briefs",
	Long:    "briefcast collects news, rewrites each story as a short spoken brief, synthesizes audio and publishes a catalog for the player.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(os.Stderr, "info", "console", verbose)

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format, verbose)
		log.Debug().Str("config", path).Msg("Config loaded")
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(introCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(runsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("briefcast", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/briefcast/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources and storage. API keys are read from the environment.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run ledger and catalog status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Runs:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		fmt.Printf("  Succeeded: %d\n", stats.Succeeded)
		fmt.Printf("  Failed: %d\n", stats.Failed)
		fmt.Printf("  Skipped: %d\n", stats.Skipped)
		if stats.LastRun != nil {
			fmt.Printf("  Last: %s %s at %s\n", stats.LastRun.Kind, stats.LastRun.Status,
				stats.LastRun.StartedAt.In(config.Location(cfg.Server.TimeZone)).Format(time.DateTime))
		}

		if holder, err := db.LockHolder(schedule.CatalogLock); err == nil && holder != "" {
			fmt.Printf("  Catalog lock held by: %s\n", holder)
		}

		fmt.Println("\nCatalog:")
		st, err := openStack(false)
		if err != nil {
			fmt.Printf("  Unavailable: %v\n", err)
			return nil
		}
		cat := st.catalog
		entries, err := cat.Load(cmd.Context())
		switch {
		case errors.Is(err, catalog.ErrCorrupt):
			fmt.Printf("  Corrupt: %v\n", err)
		case err != nil:
			fmt.Printf("  Unavailable: %v\n", err)
		default:
			fmt.Printf("  Location: %s\n", cat.URL())
			fmt.Printf("  Entries: %d\n", len(entries))
			if len(entries) > 0 {
				fmt.Printf("  Newest: %s (%s)\n", entries[0].Title, entries[0].PublishedAt)
			}
		}
		return nil
	},
}

// --- collect command ---

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect news from configured sources without writing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Collecting news from sources...")

		collector := collect.NewCollector(cfg)
		result := collector.Collect(cmd.Context())

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  Unique items: %d\n", len(result.Items))
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)

		if len(result.Sources) > 0 {
			fmt.Println("\nItems by source:")
			// Sort sources by count descending
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		for _, name := range result.Failed {
			fmt.Printf("  %s: failed\n", name)
		}
		return nil
	},
}

// --- runs command ---

var (
	runsKind  string
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(runsKind, runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		loc := config.Location(cfg.Server.TimeZone)
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"ID", "Kind", "Started", "Took", "Status", "Collected", "Briefs", "Published", "Entries", "Error"})
		for _, r := range runs {
			t.AppendRow(table.Row{
				r.ID,
				r.Kind,
				r.StartedAt.In(loc).Format(time.DateTime),
				r.Duration().Round(time.Second),
				r.Status,
				r.Collected,
				r.Briefs,
				r.Published,
				r.Entries,
				truncate(r.Error, 60),
			})
		}
		t.Render()
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsKind, "kind", "", "Only list runs of this kind (run, cleanup, intro)")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "briefcast.db")
	return database.Open(dbPath)
}


func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// withGuard opens the ledger and returns a guard for it. The returned
// close func must be called when done.
func withGuard() (*schedule.Guard, func(), error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	return schedule.NewGuard(db, cfg.Schedule.LockTTL), func() { db.Close() }, nil
}
