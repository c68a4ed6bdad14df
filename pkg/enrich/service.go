package enrich

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/devraulu/airank/pkg/ai"
	"github.com/devraulu/airank/pkg/analyzer"
	"github.com/devraulu/airank/pkg/process"
	"github.com/devraulu/airank/pkg/storage"
)

// maxPromptContent caps the body sent to the model, in characters.
const maxPromptContent = 6000

type Store interface {
	storage.ContentStore
	storage.EntityStore
}

type Config struct {
	SiteURL string
	Types   []string
	Mode    ai.Mode
}

// Service computes enrichments for items. Each enrichment records its
// outcome on the item: results and a last-run time on success, an
// <kind>_error message on failure.
type Service struct {
	store Store
	ai    ai.Client
	cfg   Config
	now   func() time.Time

	md     *converter.Converter
	ugc    *bluemonday.Policy
	strict *bluemonday.Policy
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, client ai.Client, cfg Config, opts ...Option) *Service {
	if cfg.Mode == "" {
		cfg.Mode = ai.ModeFull
	}
	s := &Service{
		store: store,
		ai:    client,
		cfg:   cfg,
		now:   time.Now,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		ugc:    bluemonday.UGCPolicy(),
		strict: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnricherFunc adapts a method to the Enricher interface.
type EnricherFunc func(ctx context.Context, ev analyzer.Event) error

func (f EnricherFunc) Enrich(ctx context.Context, ev analyzer.Event) error {
	return f(ctx, ev)
}

// Subscribers returns the entity subscriber followed by one gated subscriber
// per kind, in run order.
func (s *Service) Subscribers(gate *Gate) []analyzer.Subscriber {
	byKind := map[Kind]EnricherFunc{
		KindMissingTopics: s.MissingTopics,
		KindSchema:        s.Schema,
		KindInternalLinks: s.InternalLinks,
	}
	subs := make([]analyzer.Subscriber, 0, len(Kinds)+1)
	subs = append(subs, Always(KindEntities, EnricherFunc(s.Entities)))
	for _, k := range Kinds {
		subs = append(subs, Gated(k, gate, byKind[k]))
	}
	return subs
}

// record stores the outcome of an enrichment run and passes err through.
func (s *Service) record(ctx context.Context, id int64, lastRunKey, errKey string, err error) error {
	if err != nil {
		if serr := s.store.SetMeta(ctx, id, errKey, err.Error()); serr != nil {
			slog.Error("failed to record enrichment error", slog.Int64("id", id), slog.String("key", errKey), slog.Any("err", serr))
		}
		return err
	}
	if err := s.store.SetMeta(ctx, id, lastRunKey, s.now().Unix()); err != nil {
		return err
	}
	return s.store.DeleteMeta(ctx, id, errKey)
}

// prompt builds a model prompt. The first line names the task so fixture
// responders can answer without parsing prose.
func (s *Service) prompt(task string, item *storage.Item, instructions string) string {
	var b strings.Builder
	b.WriteString(ai.TaskPrefix + task + "\n")
	b.WriteString("Title: " + strings.TrimSpace(item.Title) + "\n\n")
	b.WriteString(strings.TrimSpace(instructions))
	b.WriteString("\n\nContent:\n")
	b.WriteString(truncate(s.markdown(item), maxPromptContent))
	return b.String()
}

func (s *Service) markdown(item *storage.Item) string {
	domain := item.URL
	if domain == "" {
		domain = s.cfg.SiteURL
	}
	md, err := s.md.ConvertString(item.Body, converter.WithDomain(domain))
	if err != nil {
		slog.Warn("markdown conversion failed, using plain text", slog.Int64("id", item.ID), slog.Any("err", err))
		return process.StripTags(item.Body)
	}
	return strings.TrimSpace(md)
}

// plain strips all markup from model output meant to be shown as text.
func (s *Service) plain(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(v)))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func (s *Service) item(ctx context.Context, id int64) (*storage.Item, error) {
	it, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load item %d: %w", id, err)
	}
	return it, nil
}
