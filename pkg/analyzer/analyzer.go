// Package analyzer runs the per-item pipeline: extract metrics, score,
// persist, record history and notify enrichment subscribers.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/devraulu/airank/pkg/history"
	"github.com/devraulu/airank/pkg/process"
	"github.com/devraulu/airank/pkg/scoring"
	"github.com/devraulu/airank/pkg/storage"
)

const (
	MetaData      = "visibility_data"
	MetaLastRun   = "visibility_last_run"
	MetaAISummary = "ai_summary"
	MetaAIQA      = "ai_qa_block"
)

// Trigger says what started an analysis.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerBatch  Trigger = "batch"
	TriggerSave   Trigger = "save"
)

type Event struct {
	ItemID  int64
	Metrics scoring.Metrics
	Score   int
	Trigger Trigger
}

// Subscriber observes finished analyses. Errors are logged by the analyzer and
// never fail the analysis.
type Subscriber interface {
	Name() string
	OnAnalyzed(ctx context.Context, ev Event) error
}

// Armer prepares one-shot enrichment flags ahead of a manual analysis.
type Armer interface {
	ArmAll(ctx context.Context, id int64) error
}

type Config struct {
	SiteURL  string
	Types    []string
	Location *time.Location
}

type Analyzer struct {
	store     storage.ContentStore
	history   *history.Store
	cfg       Config
	now       func() time.Time
	adjusters []scoring.Adjuster
	armer     Armer
	subs      []Subscriber
	log       *slog.Logger
}

type Option func(*Analyzer)

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

func WithAdjusters(adj ...scoring.Adjuster) Option {
	return func(a *Analyzer) { a.adjusters = append(a.adjusters, adj...) }
}

func WithArmer(armer Armer) Option {
	return func(a *Analyzer) { a.armer = armer }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.log = l }
}

func New(store storage.ContentStore, hist *history.Store, cfg Config, opts ...Option) *Analyzer {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	a := &Analyzer{
		store:   store,
		history: hist,
		cfg:     cfg,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Subscribe appends subscribers. They run in registration order.
func (a *Analyzer) Subscribe(subs ...Subscriber) {
	a.subs = append(a.subs, subs...)
}

// Analyze scores one item and stores the result. It fails with
// storage.ErrNotFound when the item does not exist.
func (a *Analyzer) Analyze(ctx context.Context, id int64, trigger Trigger) (scoring.Metrics, error) {
	item, err := a.store.GetItem(ctx, id)
	if err != nil {
		return scoring.Metrics{}, fmt.Errorf("analyze item %d: %w", id, err)
	}

	m, err := process.ExtractMetrics(item.Title, item.Body, a.cfg.SiteURL)
	if err != nil {
		return scoring.Metrics{}, fmt.Errorf("extract metrics of item %d: %w", id, err)
	}

	if m.HasAISummary, err = a.hasText(ctx, id, MetaAISummary); err != nil {
		return scoring.Metrics{}, err
	}
	if m.HasAIQA, err = a.hasText(ctx, id, MetaAIQA); err != nil {
		return scoring.Metrics{}, err
	}

	score := scoring.Score(m, a.adjusters...)
	now := a.now()

	if err := a.store.SetMeta(ctx, id, storage.MetaScore, score); err != nil {
		return m, fmt.Errorf("save score of item %d: %w", id, err)
	}
	if err := a.store.SetMeta(ctx, id, MetaData, m); err != nil {
		return m, fmt.Errorf("save metrics of item %d: %w", id, err)
	}
	if err := a.store.SetMeta(ctx, id, MetaLastRun, now.Unix()); err != nil {
		return m, fmt.Errorf("save last run of item %d: %w", id, err)
	}
	if err := a.history.Append(ctx, id, history.Date(now.In(a.cfg.Location)), score); err != nil {
		return m, err
	}

	a.log.Info("item analyzed",
		slog.Int64("id", id),
		slog.Int("score", score),
		slog.String("trigger", string(trigger)),
	)

	a.publish(ctx, Event{ItemID: id, Metrics: m, Score: score, Trigger: trigger})
	return m, nil
}

// AnalyzeManual arms every enrichment and then analyzes, the same as an
// editor pressing "scan now".
func (a *Analyzer) AnalyzeManual(ctx context.Context, id int64) (scoring.Metrics, error) {
	if a.armer != nil {
		if err := a.armer.ArmAll(ctx, id); err != nil {
			return scoring.Metrics{}, fmt.Errorf("arm enrichments of item %d: %w", id, err)
		}
	}
	return a.Analyze(ctx, id, TriggerManual)
}

// AnalyzeBatch is the scheduler entry point.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, id int64) error {
	_, err := a.Analyze(ctx, id, TriggerBatch)
	return err
}

// HandleSave re-analyzes an item after it was written. Items outside the
// configured types and drafts in the bin are ignored.
func (a *Analyzer) HandleSave(ctx context.Context, item storage.Item) error {
	switch item.Status {
	case "auto-draft", "trash", "inherit":
		return nil
	}
	if len(a.cfg.Types) > 0 && !slices.Contains(a.cfg.Types, item.Type) {
		return nil
	}
	_, err := a.Analyze(ctx, item.ID, TriggerSave)
	return err
}

// Score reads the stored score of an item.
func (a *Analyzer) Score(ctx context.Context, id int64) (int, bool, error) {
	var score int
	ok, err := a.store.GetMeta(ctx, id, storage.MetaScore, &score)
	return score, ok, err
}

func (a *Analyzer) hasText(ctx context.Context, id int64, key string) (bool, error) {
	var v string
	ok, err := a.store.GetMeta(ctx, id, key, &v)
	if err != nil {
		return false, fmt.Errorf("read %s of item %d: %w", key, id, err)
	}
	return ok && strings.TrimSpace(v) != "", nil
}

func (a *Analyzer) publish(ctx context.Context, ev Event) {
	for _, sub := range a.subs {
		if err := a.runSubscriber(ctx, sub, ev); err != nil {
			a.log.Error("subscriber failed",
				slog.String("subscriber", sub.Name()),
				slog.Int64("id", ev.ItemID),
				slog.Any("err", err),
			)
		}
	}
}

func (a *Analyzer) runSubscriber(ctx context.Context, sub Subscriber, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.OnAnalyzed(ctx, ev)
}
