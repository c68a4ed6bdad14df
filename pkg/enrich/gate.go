// Package enrich holds the AI-backed and heuristic add-ons computed after an
// item is analyzed, and the gate that keeps most of them to manual scans.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devraulu/airank/pkg/analyzer"
	"github.com/devraulu/airank/pkg/storage"
)

type Kind string

const (
	KindEntities      Kind = "entities"
	KindMissingTopics Kind = "missing_topics"
	KindSchema        Kind = "schema"
	KindInternalLinks Kind = "internal_links"
)

// Kinds lists the gated enrichments in the order they run. Entities are not
// gated and always run first.
var Kinds = []Kind{KindMissingTopics, KindSchema, KindInternalLinks}

const DefaultFlagTTL = 60 * time.Second

// Gate hands out one-shot permissions for an enrichment on an item. A flag
// is armed before a manual scan and consumed by the first enrichment run.
type Gate struct {
	store storage.TransientStore
	ttl   time.Duration
}

func NewGate(store storage.TransientStore, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultFlagTTL
	}
	return &Gate{store: store, ttl: ttl}
}

func FlagName(kind Kind, id int64) string {
	return fmt.Sprintf("force_%s_%d", kind, id)
}

// Arm sets the flags of kinds for item id, or of every kind when none is given.
func (g *Gate) Arm(ctx context.Context, id int64, kinds ...Kind) error {
	if len(kinds) == 0 {
		kinds = Kinds
	}
	for _, k := range kinds {
		if err := g.store.SetTransient(ctx, FlagName(k, id), "1", g.ttl); err != nil {
			return fmt.Errorf("arm %s: %w", k, err)
		}
	}
	return nil
}

func (g *Gate) ArmAll(ctx context.Context, id int64) error {
	return g.Arm(ctx, id)
}

// Take consumes the flag and reports whether it was armed.
func (g *Gate) Take(ctx context.Context, id int64, kind Kind) (bool, error) {
	return g.store.TakeTransient(ctx, FlagName(kind, id))
}

// Enricher computes one enrichment for an item.
type Enricher interface {
	Enrich(ctx context.Context, ev analyzer.Event) error
}

type gated struct {
	kind     Kind
	gate     *Gate
	enricher Enricher
}

// Gated subscribes enricher to analyses, running it only when the gate holds
// an armed flag for the item.
func Gated(kind Kind, gate *Gate, enricher Enricher) analyzer.Subscriber {
	return &gated{kind: kind, gate: gate, enricher: enricher}
}

func (g *gated) Name() string { return string(g.kind) }

func (g *gated) OnAnalyzed(ctx context.Context, ev analyzer.Event) error {
	ok, err := g.gate.Take(ctx, ev.ItemID, g.kind)
	if err != nil {
		return err
	}
	if !ok {
		slog.Debug("enrichment not armed, skipping",
			slog.String("kind", string(g.kind)),
			slog.Int64("id", ev.ItemID),
			slog.String("trigger", string(ev.Trigger)),
		)
		return nil
	}
	return g.enricher.Enrich(ctx, ev)
}

type always struct {
	kind     Kind
	enricher Enricher
}

// Always subscribes enricher to every analysis, whatever the trigger.
func Always(kind Kind, enricher Enricher) analyzer.Subscriber {
	return &always{kind: kind, enricher: enricher}
}

func (a *always) Name() string { return string(a.kind) }

func (a *always) OnAnalyzed(ctx context.Context, ev analyzer.Event) error {
	return a.enricher.Enrich(ctx, ev)
}
