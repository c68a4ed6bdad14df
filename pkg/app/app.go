// Package app wires the configured components together for the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/devraulu/airank/pkg/ai"
	"github.com/devraulu/airank/pkg/analyzer"
	"github.com/devraulu/airank/pkg/config"
	"github.com/devraulu/airank/pkg/enrich"
	"github.com/devraulu/airank/pkg/history"
	"github.com/devraulu/airank/pkg/importer"
	"github.com/devraulu/airank/pkg/notify"
	"github.com/devraulu/airank/pkg/scan"
	"github.com/devraulu/airank/pkg/snapshot"
	"github.com/devraulu/airank/pkg/storage"
)

const Version = "0.1.0"

type App struct {
	Config    *config.Config
	Store     *storage.SQLStore
	History   *history.Store
	AI        ai.Client
	Gate      *enrich.Gate
	Enrich    *enrich.Service
	Analyzer  *analyzer.Analyzer
	Scheduler *scan.Scheduler
	Trigger   scan.Trigger
	Recorder  *snapshot.Recorder
	Reporter  *snapshot.Reporter
}

type options struct {
	timers   bool
	ctx      context.Context
	aiClient ai.Client
}

type Option func(*options)

// WithTimerTicks drives scan ticks from in-process timers bound to ctx. Without
// it ticks only run when Tick is called.
func WithTimerTicks(ctx context.Context) Option {
	return func(o *options) {
		o.timers = true
		o.ctx = ctx
	}
}

// WithAIClient replaces the configured AI client.
func WithAIClient(c ai.Client) Option {
	return func(o *options) { o.aiClient = c }
}

// Open connects to the configured database, applies migrations and builds
// the app on top of it.
func Open(cfg *config.Config, opts ...Option) (*App, error) {
	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.RunMigrations(db, cfg.Database.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return New(cfg, storage.NewSQLStore(db), opts...), nil
}

// Migrate applies the migrations of the configured database and closes it.
func Migrate(cfg *config.Config) error {
	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	return storage.RunMigrations(db, cfg.Database.Driver)
}

func New(cfg *config.Config, store *storage.SQLStore, opts ...Option) *App {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Store: store}
	loc := cfg.Site.Location()

	a.History = history.New(store)
	a.AI = o.aiClient
	if a.AI == nil {
		a.AI = ai.New(cfg.AI, store)
	}
	a.Gate = enrich.NewGate(store, cfg.Enrichment.GetFlagTTL())
	a.Enrich = enrich.NewService(store, a.AI, enrich.Config{
		SiteURL: cfg.Site.URL,
		Types:   cfg.Site.Types,
		Mode:    ai.ParseMode(cfg.AI.Mode),
	})

	a.Analyzer = analyzer.New(store, a.History, analyzer.Config{
		SiteURL:  cfg.Site.URL,
		Types:    cfg.Site.Types,
		Location: loc,
	}, analyzer.WithArmer(a.Gate))
	a.Analyzer.Subscribe(a.Enrich.Subscribers(a.Gate)...)

	a.Trigger = scan.NoopTrigger{}
	if o.timers {
		ctx := o.ctx
		a.Trigger = scan.NewTimerTrigger(func() { a.Tick(ctx) })
	}
	a.Scheduler = scan.New(store, store, a.Analyzer.AnalyzeBatch, a.Trigger, scan.Config{
		SliceSize:  cfg.Scan.SliceSize,
		FirstDelay: cfg.Scan.GetFirstDelay(),
		NextDelay:  cfg.Scan.GetNextDelay(),
		LockTTL:    cfg.Scan.GetLockTTL(),
		Types:      cfg.Site.Types,
	}, scan.OnComplete(a.recordCompletedScan))

	a.Recorder = snapshot.NewRecorder(store, cfg.Site.Types, loc)
	a.Reporter = snapshot.NewReporter(a.Recorder, store, snapshot.ReportConfig{
		SiteURL:  cfg.Site.URL,
		SiteName: cfg.Site.Name,
		EmailTo:  recipients(cfg),
		Version:  Version,
	}, reportSinks(cfg)...)

	return a
}

// Tick runs one scheduler tick and logs its outcome.
func (a *App) Tick(ctx context.Context) scan.Outcome {
	out, err := a.Scheduler.Tick(ctx)
	if err != nil {
		slog.Error("scan tick failed", slog.String("outcome", out.String()), slog.Any("err", err))
		return out
	}
	slog.Debug("scan tick", slog.String("outcome", out.String()))
	return out
}

// recordCompletedScan stores a site snapshot once every item of a run has a
// fresh score.
func (a *App) recordCompletedScan(ctx context.Context, st scan.State) {
	snap, err := a.Recorder.Record(context.WithoutCancel(ctx))
	if err != nil {
		slog.Error("failed to record snapshot after scan", slog.String("run_id", st.RunID), slog.Any("err", err))
		return
	}
	slog.Info("recorded snapshot after scan",
		slog.String("run_id", st.RunID),
		slog.String("date", snap.Date),
		slog.Int("scanned", snap.ScannedCount),
	)
}

// Importer returns an importer that stores pages and runs the save hook of
// the analyzer on each of them.
func (a *App) Importer() *importer.Importer {
	return importer.New(importer.Config{
		UserAgent: a.Config.Importer.UserAgent,
		ItemType:  a.Config.Importer.ItemType,
		Delay:     a.Config.Importer.GetDelay(),
		Workers:   a.Config.Importer.Workers,
	}, a.Store, importer.WithSaveHook(a.Analyzer.HandleSave))
}

func (a *App) DB() *sql.DB {
	return a.Store.DB()
}

func (a *App) Close() error {
	a.Trigger.CancelAll()
	return a.Store.Close()
}

func recipients(cfg *config.Config) []string {
	to := cfg.Notify.EmailTo
	if to == "" {
		to = cfg.Site.AdminMail
	}
	var out []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func reportSinks(cfg *config.Config) []snapshot.ReportOption {
	var opts []snapshot.ReportOption
	if cfg.Notify.WeeklyEmail {
		mailer, err := notify.NewEmailSink(cfg.Notify.SMTP)
		if err != nil {
			slog.Warn("weekly email enabled but smtp is not configured", slog.Any("err", err))
		} else {
			opts = append(opts, snapshot.WithMailer(mailer))
		}
	}
	if cfg.Notify.WebhookURL != "" {
		hook, err := notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.GetWebhookTimeout())
		if err == nil {
			opts = append(opts, snapshot.WithWebhook(hook))
		}
	}
	return opts
}
