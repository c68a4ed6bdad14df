package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/devraulu/airank/pkg/app"
	"github.com/devraulu/airank/pkg/config"
	"github.com/devraulu/airank/pkg/logger"
	"github.com/devraulu/airank/pkg/server"
)

func main() {
	configPath := "config.toml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("fatal: couldn't load config", slog.Any("err", err))
		os.Exit(1)
	}

	closeLog := logger.InitLogger(cfg)
	defer closeLog()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := app.Open(cfg, app.WithTimerTicks(ctx))
	if err != nil {
		slog.Error("fatal: couldn't open app", slog.Any("err", err))
		os.Exit(1)
	}
	defer a.Close()

	// A scan started before a restart, or by the CLI, has no timer yet.
	resume(ctx, a)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("starting web server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("web server failed", slog.Any("err", err))
		}
		stop()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		housekeeping(ctx, a)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		weeklyReports(ctx, a, cfg.Notify.GetReportInterval())
	}()

	appSignal := make(chan os.Signal, 1)
	signal.Notify(appSignal, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case s := <-appSignal:
		slog.Info("received system signal", slog.String("signal", s.String()))
		stop()
	case <-ctx.Done():
		slog.Info("context done, stopping")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("web server shutdown", slog.Any("err", err))
	}

	wg.Wait()
	slog.Info("shutdown complete")
}

func resume(ctx context.Context, a *app.App) {
	ok, err := a.Scheduler.Resume(ctx)
	if err != nil {
		slog.Error("failed to resume scan", slog.Any("err", err))
		return
	}
	if ok {
		slog.Info("resumed running scan")
	}
}

// housekeeping picks up scans started by other processes and drops expired
// flags and locks.
func housekeeping(ctx context.Context, a *app.App) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resume(ctx, a)
			n, err := a.Store.PurgeExpired(ctx)
			if err != nil {
				slog.Warn("failed to purge expired transients", slog.Any("err", err))
				continue
			}
			if n > 0 {
				slog.Debug("purged expired transients", slog.Int64("count", n))
			}
		}
	}
}

// weeklyReports is disabled by a zero interval.
func weeklyReports(ctx context.Context, a *app.App, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := a.Reporter.RunWeekly(ctx)
			if err != nil {
				slog.Error("weekly report failed", slog.Any("err", err))
				continue
			}
			if report.Skipped {
				slog.Info("weekly report already sent in this window")
				continue
			}
			slog.Info("weekly report sent",
				slog.Bool("emailed", report.Emailed),
				slog.Int("scanned", report.Snapshot.ScannedCount))
		}
	}
}
