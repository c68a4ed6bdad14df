package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devraulu/airank/pkg/analyzer"
	"github.com/devraulu/airank/pkg/app"
	"github.com/devraulu/airank/pkg/history"
	"github.com/devraulu/airank/pkg/importer"
	"github.com/devraulu/airank/pkg/process"
	"github.com/devraulu/airank/pkg/scoring"
)

var (
	seedsPath     string
	analyzeManual bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Migrate(cfg); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		fmt.Println("Migrations applied.")
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Fetch the pages listed in the seeds file and analyze them",
	Long: `Fetch every URL of the seeds file, respecting robots.txt and a per-host
delay, store the main content as published items and analyze each one.

Examples:
  airank import
  airank import --seeds urls.txt`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := seedsPath
		if path == "" {
			path = cfg.Importer.SeedsFile
		}
		seeds, err := importer.LoadSeeds(path)
		if err != nil {
			return fmt.Errorf("load seeds: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGQUIT)
		defer stop()

		stats := application.Importer().Run(ctx, seeds)
		fmt.Printf("Imported %d, skipped %d, failed %d in %s.\n",
			stats.Imported, stats.Skipped, stats.Errored, stats.Elapsed().Round(time.Millisecond))
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <id>",
	Short: "Score one item",
	Long: `Score one item and store the result.

Entities are extracted on every run. With --manual the other enrichments
(missing topics, schema, internal links) run too, as when an editor presses
"scan now".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx := context.Background()

		var m scoring.Metrics
		if analyzeManual {
			m, err = application.Analyzer.AnalyzeManual(ctx, id)
		} else {
			m, err = application.Analyzer.Analyze(ctx, id, analyzer.TriggerManual)
		}
		if err != nil {
			return err
		}

		score, _, err := application.Analyzer.Score(ctx, id)
		if err != nil {
			return err
		}
		delta, err := application.History.Delta(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"id":      id,
			"score":   score,
			"metrics": m,
			"signals": scoring.Signals(m),
			"delta":   delta,
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the score history of an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		entries, err := application.History.Entries(context.Background(), id)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No history yet.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %3d\n", e.Date, e.Score)
		}
		d := history.Compute(entries)
		fmt.Printf("\nSince last: %s  Since a week ago: %s\n", formatDelta(d.SinceLast), formatDelta(d.SinceWeek))
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate AI content for an item",
}

var generateSummaryCmd = &cobra.Command{
	Use:   "summary <id>",
	Short: "Generate and store an AI summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		out, err := application.Enrich.GenerateSummary(context.Background(), id)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var generateQACmd = &cobra.Command{
	Use:   "qa <id>",
	Short: "Generate and store an AI question and answer block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		out, err := application.Enrich.GenerateQA(context.Background(), id)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var crawlersCmd = &cobra.Command{
	Use:   "crawlers",
	Short: "Check which AI crawlers robots.txt lets in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Site.URL == "" {
			return fmt.Errorf("site.url is not configured")
		}
		access, err := process.AuditAICrawlers(cfg.Site.URL, nil)
		if err != nil {
			return err
		}
		for _, a := range access {
			state := "blocked"
			if a.Allowed {
				state = "allowed"
			}
			fmt.Printf("%-16s %s\n", a.Agent, state)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&seedsPath, "seeds", "", "seeds file (defaults to importer.seeds_file)")
	analyzeCmd.Flags().BoolVar(&analyzeManual, "manual", false, "also run the gated enrichments")

	generateCmd.AddCommand(generateSummaryCmd)
	generateCmd.AddCommand(generateQACmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

func formatDelta(d *int) string {
	if d == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+d", *d)
}
