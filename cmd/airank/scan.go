package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devraulu/airank/pkg/scan"
)

var (
	scanTypes    string
	scanWait     bool
	snapshotsMax int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Control the batch scan",
}

var scanStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a batch scan of every published item",
	Long: `Start a batch scan of every published item in scope.

Without --wait the scan is driven by a running web process, or by
calling "airank scan tick". With --wait this command runs the ticks itself
until the scan is complete.

Examples:
  airank scan start
  airank scan start --types post --wait`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var types []string
		for _, t := range strings.Split(scanTypes, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGQUIT)
		defer stop()

		st, err := application.Scheduler.Start(ctx, types)
		if err != nil {
			return err
		}
		fmt.Printf("Scan %s started with %d items.\n", st.RunID, len(st.Queue))
		if !scanWait {
			return nil
		}

		delay := cfg.Scan.GetNextDelay()
		for {
			switch application.Tick(ctx) {
			case scan.OutcomeCompleted, scan.OutcomeIdle:
				return printScanState(ctx)
			}
			if err := printScanState(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				fmt.Println("Interrupted; the scan stays running.")
				return nil
			case <-time.After(delay):
			}
		}
	},
}

var scanTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Process the next slice of the running scan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		fmt.Printf("Tick %s.\n", application.Tick(ctx))
		return printScanState(ctx)
	},
}

var scanCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the running scan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cancelled, err := application.Scheduler.Cancel(context.Background())
		if err != nil {
			return err
		}
		if cancelled {
			fmt.Println("Scan cancelled.")
		} else {
			fmt.Println("No scan was running.")
		}
		return nil
	},
}

var scanStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the batch scan state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printScanState(context.Background())
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Record or list site snapshots",
}

var snapshotRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the current average score",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := application.Recorder.Record(context.Background())
		if err != nil {
			return err
		}
		return printJSON(snap)
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snaps, err := application.Recorder.Recent(context.Background(), snapshotsMax)
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots yet.")
			return nil
		}
		for _, s := range snaps {
			avg := "N/A"
			if s.AvgScore != nil {
				avg = fmt.Sprintf("%.1f", *s.AvgScore)
			}
			fmt.Printf("%s  %6s  %d items\n", s.Date, avg, s.ScannedCount)
		}
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Send reports",
}

var reportWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Record a snapshot and send the weekly email and webhook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := application.Reporter.RunWeekly(context.Background())
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

func init() {
	scanStartCmd.Flags().StringVar(&scanTypes, "types", "", "comma separated item types (defaults to site.types)")
	scanStartCmd.Flags().BoolVar(&scanWait, "wait", false, "run ticks until the scan completes")
	snapshotListCmd.Flags().IntVar(&snapshotsMax, "limit", 0, "maximum number of snapshots (0 for all)")

	scanCmd.AddCommand(scanStartCmd, scanTickCmd, scanCancelCmd, scanStatusCmd)
	snapshotCmd.AddCommand(snapshotRecordCmd, snapshotListCmd)
	reportCmd.AddCommand(reportWeeklyCmd)
}

func printScanState(ctx context.Context) error {
	v, err := application.Scheduler.State(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Status: %s  Progress: %d/%d\n", v.Status, v.Progress, v.Total)
	return nil
}
