package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devraulu/airank/pkg/notify"
	"github.com/devraulu/airank/pkg/storage"
)

const (
	ReportLock          = "weekly_report_lock"
	WebhookStatusOption = "webhook_status"

	reportLockTTL = 15 * time.Minute
)

type ReportStore interface {
	storage.TransientStore
	storage.OptionStore
}

// WebhookStatus is the outcome of the last webhook delivery.
type WebhookStatus struct {
	Code   int       `json:"code"`
	Error  string    `json:"error"`
	SentAt time.Time `json:"sent_at"`
}

type ReportConfig struct {
	SiteURL  string
	SiteName string
	EmailTo  []string
	Version  string
}

// Report describes one weekly run.
type Report struct {
	// Skipped is set when another run holds the report lock.
	Skipped    bool                 `json:"skipped"`
	Snapshot   storage.SiteSnapshot `json:"snapshot"`
	Trend      string               `json:"trend"`
	Emailed    bool                 `json:"emailed"`
	EmailError string               `json:"email_error,omitempty"`
	Webhook    *WebhookStatus       `json:"webhook,omitempty"`
}

type Reporter struct {
	rec     *Recorder
	store   ReportStore
	cfg     ReportConfig
	mailer  notify.Mailer
	webhook notify.Poster
	now     func() time.Time
	log     *slog.Logger
}

type ReportOption func(*Reporter)

func WithMailer(m notify.Mailer) ReportOption {
	return func(r *Reporter) { r.mailer = m }
}

func WithWebhook(p notify.Poster) ReportOption {
	return func(r *Reporter) { r.webhook = p }
}

func WithReportClock(now func() time.Time) ReportOption {
	return func(r *Reporter) { r.now = now }
}

func WithReportLogger(l *slog.Logger) ReportOption {
	return func(r *Reporter) { r.log = l }
}

func NewReporter(rec *Recorder, store ReportStore, cfg ReportConfig, opts ...ReportOption) *Reporter {
	r := &Reporter{rec: rec, store: store, cfg: cfg, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunWeekly records a snapshot and sends it to the configured sinks. A second
// run within 15 minutes is skipped. Sink failures are logged and reported,
// not returned.
func (r *Reporter) RunWeekly(ctx context.Context) (Report, error) {
	ok, err := r.store.AcquireLock(ctx, ReportLock, uuid.NewString(), reportLockTTL)
	if err != nil {
		return Report{}, fmt.Errorf("acquire report lock: %w", err)
	}
	if !ok {
		r.log.Info("weekly report already sent recently, skipping")
		return Report{Skipped: true}, nil
	}

	snap, err := r.rec.Record(ctx)
	if err != nil {
		return Report{}, err
	}
	recent, err := r.rec.Recent(ctx, 2)
	if err != nil {
		return Report{}, fmt.Errorf("load recent snapshots: %w", err)
	}
	arrow, label := Trend(recent)
	report := Report{Snapshot: snap, Trend: arrow}

	if r.mailer != nil && len(r.cfg.EmailTo) > 0 {
		msg := notify.Message{
			To:      r.cfg.EmailTo,
			Subject: fmt.Sprintf("Your Weekly AI Visibility Update: %s", r.cfg.SiteName),
			Body:    r.emailBody(snap, arrow, label),
		}
		if err := r.mailer.Send(ctx, msg); err != nil {
			r.log.Error("failed to send weekly email", slog.Any("err", err))
			report.EmailError = err.Error()
		} else {
			report.Emailed = true
		}
	}

	if r.webhook != nil {
		status := r.sendWebhook(ctx, snap)
		report.Webhook = &status
	}

	return report, nil
}

func (r *Reporter) sendWebhook(ctx context.Context, snap storage.SiteSnapshot) WebhookStatus {
	payload := map[string]any{
		"event":          "weekly_report",
		"site_url":       r.cfg.SiteURL,
		"site_name":      r.cfg.SiteName,
		"snapshot_date":  snap.Date,
		"avg_score":      snap.AvgScore,
		"scanned_count":  snap.ScannedCount,
		"plugin_version": r.cfg.Version,
		"timestamp":      r.now().Unix(),
	}

	code, err := r.webhook.Post(ctx, payload)
	status := WebhookStatus{Code: code, SentAt: r.now()}
	if err != nil {
		r.log.Error("weekly webhook failed", slog.Any("err", err))
		status.Error = err.Error()
	}
	if err := r.store.SetOption(ctx, WebhookStatusOption, status); err != nil {
		r.log.Error("failed to save webhook status", slog.Any("err", err))
	}
	return status
}

func (r *Reporter) emailBody(snap storage.SiteSnapshot, arrow, label string) string {
	score := "N/A"
	if snap.AvgScore != nil {
		score = fmt.Sprintf("%.1f", *snap.AvgScore)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", snap.Date)
	fmt.Fprintf(&b, "AI Visibility Score: %s %s\n", score, arrow)
	fmt.Fprintf(&b, "Scanned items: %d\n\n", snap.ScannedCount)
	b.WriteString(label + "\n")
	if r.cfg.SiteURL != "" {
		fmt.Fprintf(&b, "\nSite: %s\n", r.cfg.SiteURL)
	}
	return b.String()
}

// Trend compares the two newest snapshots and returns an arrow and a
// sentence. Missing data yields an empty arrow.
func Trend(recent []storage.SiteSnapshot) (string, string) {
	if len(recent) < 2 || recent[0].AvgScore == nil || recent[1].AvgScore == nil {
		return "", "No previous data."
	}
	cur, prev := *recent[0].AvgScore, *recent[1].AvgScore
	switch {
	case cur > prev:
		return "↑", "Visibility improved since last week."
	case cur < prev:
		return "↓", "Visibility decreased since last week."
	default:
		return "→", "Visibility is stable compared to last week."
	}
}
