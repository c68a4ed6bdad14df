package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/devraulu/airank/pkg/app"
	"github.com/devraulu/airank/pkg/config"
	"github.com/devraulu/airank/pkg/logger"
)

var (
	configPath string

	cfg         *config.Config
	application *app.App
	closeLog    func() error
)

// Commands that manage their own database access.
var noApp = map[string]bool{"help": true, "migrate": true, "crawlers": true}

var rootCmd = &cobra.Command{
	Use:   "airank",
	Short: "AI visibility scoring for site content",
	Long: `airank scores pages for how well AI answer engines can understand them,
runs throttled batch scans, tracks score history and produces AI enrichments.`,
	Version:       app.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		closeLog = logger.InitLogger(cfg)

		if noApp[cmd.Name()] {
			return nil
		}
		application, err = app.Open(cfg)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application != nil {
			if err := application.Close(); err != nil {
				slog.Warn("failed to close database", slog.Any("err", err))
			}
		}
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to the TOML config file")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(crawlersCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
